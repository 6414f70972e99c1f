// Package ids provides the process-local and cluster-wide identifiers used
// throughout swindon: connection ids (Cid) and globally unique, time-ordered
// node/runtime ids (RuntimeId / ServerId).
package ids

import (
	"strconv"
	"sync/atomic"
)

// Cid is a process-local, monotonically increasing connection identifier.
// Cids are never reused within a process lifetime.
type Cid uint64

// String renders the Cid the way it appears on the wire (decimal).
func (c Cid) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ParseCid parses the decimal form used by the admin HTTP surface (§4.6).
func ParseCid(s string) (Cid, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return Cid(v), true
}

// CidAllocator hands out Cids. Zero value is usable.
type CidAllocator struct {
	next atomic.Uint64
}

// Next returns the next Cid. Starts at 1 so the zero Cid can mean "none".
func (a *CidAllocator) Next() Cid {
	return Cid(a.next.Add(1))
}
