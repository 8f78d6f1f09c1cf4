package core

// Frame is one encoded JSON event, ready for the wire.
type Frame []byte

// SignalConnection is the outbound half of a client connection.
// TrySend never blocks: a full queue returns ErrBackpressure and a closed
// one ErrClosed. The transport adapter owns the connection and closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
