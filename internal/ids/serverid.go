package ids

import (
	"encoding/base64"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ServerId (aka RuntimeId) is a 24-byte, globally unique, k-ordered-by-time
// identifier: {48-bit ms timestamp, 96-bit random process seed, 48-bit
// monotone counter}. It tags outgoing replication messages so receivers can
// drop actions that originated from themselves (spec §3, §4.7, §8).
type ServerId [24]byte

// String returns the base64 (standard, padded) wire form.
func (s ServerId) String() string {
	return base64.StdEncoding.EncodeToString(s[:])
}

// ParseServerId decodes the wire form produced by String.
func ParseServerId(s string) (ServerId, bool) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != 24 {
		return ServerId{}, false
	}
	var id ServerId
	copy(id[:], b)
	return id, true
}

// Generator mints ServerIds for one process: a fixed 96-bit random seed
// established once at startup, combined with a wall-clock timestamp and a
// monotone counter at mint time. Mirrors original_source's cid.rs allocation
// style (bare atomic counter, no reuse) extended with the timestamp/seed
// prefix that makes the id globally unique and time-ordered.
type Generator struct {
	seed    [12]byte
	counter atomic.Uint64
}

// NewGenerator creates a Generator with a fresh random seed, taken from the
// first 96 bits of a v4 UUID (google/uuid, itself backed by crypto/rand).
func NewGenerator() *Generator {
	g := &Generator{}
	u := uuid.New()
	copy(g.seed[:], u[:12])
	return g
}

// Next mints a new ServerId using the given timestamp (the caller supplies
// it so this stays a pure function outside the processor's no-clock-reads
// rule; callers at the process boundary pass time.Now()).
func (g *Generator) Next(now time.Time) ServerId {
	var id ServerId
	ms := uint64(now.UnixMilli()) & 0xFFFFFFFFFFFF // 48 bits
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], ms)
	copy(id[0:6], tsBuf[2:8])
	copy(id[6:18], g.seed[:])
	counter := g.counter.Add(1) & 0xFFFFFFFFFFFF // 48 bits
	var ctrBuf [8]byte
	binary.BigEndian.PutUint64(ctrBuf[:], counter)
	copy(id[18:24], ctrBuf[2:8])
	return id
}
