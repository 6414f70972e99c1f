package wire

// Outbox is the per-connection outbound delivery queue (spec §3 "outbound
// channel"). It is created once by the frontend when a socket is accepted
// and handed, by reference, to the processor (inside NewConnection) and to
// the AuthCodec dispatched alongside it; the frontend itself pushes
// CallCodec results onto it. Every producer pushes without ever blocking
// on a slow reader.
type Outbox = Queue[Outbound]

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox {
	return NewQueue[Outbound]()
}
