package models

// Peer is the outbound half of a transport connection. Send must not block:
// a slow or closed peer reports an error instead. Implementations are
// compared by identity, so they should be pointer types.
type Peer interface {
	Send(frame []byte) error
}
