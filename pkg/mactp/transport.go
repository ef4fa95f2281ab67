package mactp

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by TimedRecv when no frame arrived before the
// deadline.
var ErrTimeout = errors.New("mactp: timed out waiting for a frame")

// ErrClosed is returned by Recv/TimedRecv once the transport has been
// closed.
var ErrClosed = errors.New("mactp: transport closed")

// Header carries the per-frame metadata the MAC layer is expected to supply
// alongside the raw payload: the previous-hop address and the received
// signal strength of that frame.
type Header struct {
	SrcAddr Addr
	RSSI    int16
}

// Transport is the contract a routing engine consumes from the MAC layer:
// blocking send, blocking receive, and timed receive of raw frames, with an
// RSSI indication and a per-frame source address. Implementations must
// serialize concurrent use internally; the radio is a shared, exclusive
// resource.
type Transport interface {
	// Send transmits payload to dest, returning false on transient MAC
	// failure. It never blocks indefinitely longer than the underlying
	// medium's own send timeout.
	Send(ctx context.Context, dest Addr, payload []byte) bool

	// Recv blocks until a frame arrives, copying it into buf and returning
	// its length and header.
	Recv(ctx context.Context, buf []byte) (n int, hdr Header, err error)

	// TimedRecv blocks until a frame arrives or timeout elapses, in which
	// case it returns (0, Header{}, ErrTimeout).
	TimedRecv(ctx context.Context, buf []byte, timeout time.Duration) (n int, hdr Header, err error)

	// Close releases any resources held by the transport and unblocks any
	// pending Recv/TimedRecv calls with ErrClosed.
	Close() error
}

// AmbientControl is implemented by transports that can suppress their own
// ambient noise monitoring while a node is actively sensing for neighbours,
// mirroring the source's temporary "mac.ambient = 0" during STRP/SMRP
// discovery. Transports without a notion of ambient noise simply don't
// implement it.
type AmbientControl interface {
	SetAmbient(enabled bool)
}
