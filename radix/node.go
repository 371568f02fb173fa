package radix

// radNode is one trie node: an optional element plus a back-pointer to its
// parent slot (for the compaction and relocation bookkeeping spec.md
// section 4.3 calls for) and a pointer to its dense child-selector array.
type radNode struct {
	parent Offset
	pidx   uint8 // this node's slot index within parent's array
	offset uint8 // first byte value covered by this node's own lookup array
	elem   any   // nil means "no key terminates here"
	lookup Offset
}

// radSelector is one populated (or intentionally empty) slot of a
// radArray: the child it leads to and the edge string traversed between
// the distinguishing byte and the child itself.
type radSelector struct {
	node Offset
	str  []byte
}

// radArray is the dense, offset-indexed array of child selectors hanging
// off a radNode's lookup field. It spans byte values
// [node.offset, node.offset+len), some of which may be unpopulated gaps.
type radArray struct {
	slots  []radSelector
	len    int
	strCap int
}
