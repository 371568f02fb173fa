package radix

import "fmt"

// CheckInvariants walks the whole tree and validates structural invariants
// 1–7 of spec.md's list, porting the checks
// original_source/tpkg/cutest/cutest_udbrad.c's test_check_invariants runs
// after every mutation in the reference test suite. It is exported so
// package tests (and any caller building a randomized stress test) can
// assert structural health without reaching into unexported fields.
// Invariant 8 (the path to a node spells its element's key) is not
// checked: elements are opaque values that carry no key of their own.
func (t *Tree) CheckInvariants() error {
	if t.root == Null {
		if t.count != 0 {
			return fmt.Errorf("radix: empty root but count=%d", t.count)
		}
		return nil
	}
	if t.arena.node(t.root).parent != Null {
		return fmt.Errorf("radix: root has non-null parent")
	}
	seen := 0
	if err := t.checkNode(t.root, &seen); err != nil {
		return err
	}
	if seen != t.count {
		return fmt.Errorf("radix: walked %d elements, count=%d", seen, t.count)
	}
	return nil
}

func (t *Tree) checkNode(n Offset, seen *int) error {
	nd := t.arena.node(n)
	if nd.elem != nil {
		*seen++
	}

	arr := t.arena.array(nd.lookup)
	if arr == nil {
		if nd.lookup != Null {
			return fmt.Errorf("radix: node %d has lookup offset but no array", n)
		}
		return nil
	}

	// Invariant 1: len <= capacity <= 256. Capacity is derived (idealStrCap
	// style doubling) rather than stored, so we check it against len directly.
	if arr.len > 256 {
		return fmt.Errorf("radix: node %d array len %d exceeds 256", n, arr.len)
	}
	if len(arr.slots) != arr.len {
		return fmt.Errorf("radix: node %d array len %d does not match backing slice %d", n, arr.len, len(arr.slots))
	}

	// Invariant 2: offset + len <= 256.
	if int(nd.offset)+arr.len > 256 {
		return fmt.Errorf("radix: node %d offset %d + len %d exceeds 256", n, nd.offset, arr.len)
	}

	// Invariant 3: len==0 implies offset==0 (and no strCap).
	if arr.len == 0 {
		if nd.offset != 0 || arr.strCap != 0 {
			return fmt.Errorf("radix: node %d empty array has nonzero offset/strCap", n)
		}
		return nil
	}

	maxEdge := 0
	children := 0
	for i := 0; i < arr.len; i++ {
		sel := arr.slots[i]
		if sel.node == Null {
			continue
		}
		children++

		// Invariant 5 (per-slot half): edge length must not exceed strCap.
		if len(sel.str) > arr.strCap {
			return fmt.Errorf("radix: node %d slot %d edge len %d exceeds strCap %d", n, i, len(sel.str), arr.strCap)
		}
		if len(sel.str) > maxEdge {
			maxEdge = len(sel.str)
		}

		// Invariant 6: back-pointer correctness.
		cn := t.arena.node(sel.node)
		if cn.parent != n {
			return fmt.Errorf("radix: node %d slot %d child has parent %d", n, i, cn.parent)
		}
		if int(cn.pidx) != i {
			return fmt.Errorf("radix: node %d slot %d child has pidx %d", n, i, cn.pidx)
		}

		if err := t.checkNode(sel.node, seen); err != nil {
			return err
		}
	}

	// Invariant 4: a nonempty array is never less than half full.
	capacity := idealStrCap(arr.len)
	if capacity != 0 && arr.len*2 < capacity {
		return fmt.Errorf("radix: node %d array len %d underfull for capacity %d", n, arr.len, capacity)
	}

	// Invariant 5 (aggregate half): strCap/2 <= max edge len <= strCap.
	want := idealStrCap(maxEdge)
	if arr.strCap != want {
		return fmt.Errorf("radix: node %d strCap %d does not match ideal %d for max edge %d", n, arr.strCap, want, maxEdge)
	}

	// The root may be transiently empty (freshly created, or drained by
	// deletes); compact() never unlinks it. Every other node with zero live
	// children and no element should have been unlinked, and every other
	// node with exactly one child and no element should have been merged.
	if nd.parent != Null {
		if children == 0 && nd.elem == nil {
			return fmt.Errorf("radix: node %d is dangling (no element, no children)", n)
		}
		if children == 1 && nd.elem == nil {
			return fmt.Errorf("radix: node %d has a single child and no element, should have been merged", n)
		}
	}

	return nil
}
