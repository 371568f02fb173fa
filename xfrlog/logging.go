/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

// Package xfrlog sets up the per-zone and CLI loggers the transfer tool
// uses, grounded on the teacher's tdns/logging.go.
package xfrlog

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewZoneLogger returns a *log.Logger prefixed with appName and zone,
// rotating through logfile via lumberjack when one is configured
// (teacher: SetupLogging's lumberjack.Logger, here one instance per zone
// instead of a single process-global log.Logger, matching zone.ZoneData's
// own Logger field).
func NewZoneLogger(appName, zone, logfile string) *log.Logger {
	prefix := fmt.Sprintf("%s[%s] ", appName, zone)
	if logfile == "" {
		return log.New(os.Stderr, prefix, log.Lshortfile|log.Ltime)
	}
	return log.New(&lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     14,
	}, prefix, log.Lshortfile|log.Ltime)
}

// SetupCliLogging configures the standard logger for CLI output: no
// timestamps by default, file/line info when verbose or debug is on
// (teacher: SetupCliLogging, parameterized here instead of reading a
// package-global Globals struct).
func SetupCliLogging(verbose, debug bool) {
	if verbose || debug {
		log.SetFlags(log.Lshortfile | log.Ltime)
	} else {
		log.SetFlags(0)
	}
}
