// Package frontend implements the per-client WebSocket state machine:
// handshake, the out-of-band auth dance, the read/write loop, and outbound
// frame encoding (spec §4.5).
package frontend

import (
	"github.com/swindon-chat/swindon/internal/wire"
)

// CloseCodeFor derives the WebSocket close code and reason text for a
// StopSocket's CloseReason (spec §4.5, grounded on
// original_source/src/chat/close_reason.rs): PoolStopped -> 4001,
// AuthHTTP(s) -> 4000+s for 400<=s<=599 else 4500, PeerClose(c,_) -> c
// unchanged.
func CloseCodeFor(reason wire.CloseReason) (code uint16, text string) {
	switch r := reason.(type) {
	case wire.PoolStopped:
		return 4001, "pool stopped"
	case wire.AuthHTTP:
		if r.Status >= 400 && r.Status <= 599 {
			return uint16(4000 + r.Status), "auth failed"
		}
		return 4500, "auth failed"
	case wire.PeerClose:
		return r.Code, r.Reason
	default:
		return 4500, "internal error"
	}
}
