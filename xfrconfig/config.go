/*
 * Copyright (c) 2024 Johan Stenstam, johan.stenstam@internetstiftelsen.se
 */

// Package xfrconfig loads the transfer tool's configuration: which zones
// to track, which masters to pull each from, and which TSIG key (if any)
// authenticates each master — grounded on the teacher's tdns/config.go,
// reduced to what a zone-transfer-only core needs.
package xfrconfig

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the top-level shape viper decodes the YAML config file into.
type Config struct {
	AppName          string
	AppVersion       string
	AppDate          string
	ServerConfigTime time.Time
	Service          ServiceConf
	Db               DbConf
	Log              LogConf
	Zones            map[string]ZoneConf
}

type ServiceConf struct {
	Name    string `validate:"required"`
	Debug   *bool
	Verbose *bool
}

// DbConf names the SQLite file the keystore is persisted to.
type DbConf struct {
	File string `validate:"required"`
}

type LogConf struct {
	File string `validate:"required"`
}

// MasterConf is one candidate source server for a zone and the TSIG key
// (by name, looked up in the keystore) that authenticates it, if any.
type MasterConf struct {
	Address string `validate:"required"`
	Key     string // TSIG key name, looked up in the keystore; "" = unsigned
}

// ZoneConf is the external config for one tracked zone: no zone data
// lives here, only where to get it from (teacher: tdns.ZoneConf, reduced
// to the fields a transfer-only core needs — no Type/Store/Options, since
// every zone this core tracks is, by definition, an AXFR secondary).
type ZoneConf struct {
	Name     string `validate:"required"`
	Masters  []MasterConf `validate:"required,dive"`
	Zonefile string       `validate:"required"`
}

// LoadConfig reads cfgfile via viper and validates it. Grounded on the
// teacher's ValidateConfig/ValidateBySection (tdns/config.go), trimmed to
// the sections this core actually has.
func LoadConfig(cfgfile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(cfgfile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("xfrconfig: reading %s: %w", cfgfile, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("xfrconfig: unmarshalling %s: %w", cfgfile, err)
	}

	if err := validateBySection(&config, map[string]interface{}{
		"service": config.Service,
		"db":      config.Db,
		"log":     config.Log,
	}, cfgfile); err != nil {
		return nil, err
	}
	if err := validateZones(&config, cfgfile); err != nil {
		return nil, err
	}

	config.ServerConfigTime = time.Now()
	return &config, nil
}

func validateZones(config *Config, cfgfile string) error {
	zones := make(map[string]interface{}, len(config.Zones))
	for zname, val := range config.Zones {
		zones["zone:"+zname] = val
	}
	return validateBySection(config, zones, cfgfile)
}

func validateBySection(config *Config, sections map[string]interface{}, cfgfile string) error {
	validate := validator.New()
	for name, data := range sections {
		if err := validate.Struct(data); err != nil {
			return fmt.Errorf("xfrconfig: %s: section %s: %w", cfgfile, strings.ToUpper(name), err)
		}
	}
	return nil
}

// Reload re-reads cfgfile and replaces c's contents with the result,
// matching the teacher's ReloadConfig. Nothing in this module calls it or
// installs a signal handler for it.
func (c *Config) Reload(cfgfile string) error {
	next, err := LoadConfig(cfgfile)
	if err != nil {
		return err
	}
	*c = *next
	log.Printf("%s: config %s reloaded", strings.ToUpper(c.Service.Name), cfgfile)
	return nil
}
