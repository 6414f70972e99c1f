// Package inactivity consumes a pool's InactiveSession messages and fires
// one backend.InactivityCodec per configured destination (spec §4.8).
package inactivity

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/backend"
	"github.com/swindon-chat/swindon/internal/pool"
)

// Dispatcher drains one Processor's Messages() queue and fans each
// InactiveSession out to every configured destination, matching
// original_source's inactivity_handler.rs multi-destination fan-out.
// Failures are logged; there is no retry queue (at-most-once contract).
type Dispatcher struct {
	processor    *pool.Processor
	destinations []*backend.InactivityCodec
	log          zerolog.Logger
}

// NewDispatcher returns a Dispatcher for processor, firing every codec in
// destinations for each InactiveSession message it observes.
func NewDispatcher(processor *pool.Processor, destinations []*backend.InactivityCodec, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		processor:    processor,
		destinations: destinations,
		log:          log.With().Str("component", "inactivity").Logger(),
	}
}

// Run drains messages until ctx is cancelled. Only InactiveSession
// messages are acted on; other MessageTypes (reserved for future pool
// lifecycle events) are ignored rather than treated as an error.
func (d *Dispatcher) Run(ctx context.Context) {
	messages := d.processor.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case <-messages.Signal():
			for _, msg := range messages.Drain() {
				d.dispatch(ctx, msg)
			}
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg pool.Message) {
	if msg.Type != pool.InactiveSession {
		return
	}
	log := d.log.With().Str("session_id", msg.SessionID).Int("connections", msg.ConnectionCount).Logger()
	for _, codec := range d.destinations {
		go func(codec *backend.InactivityCodec) {
			codec.Dispatch(ctx, log)
		}(codec)
	}
}
