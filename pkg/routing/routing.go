// Package routing defines the contract applications use to talk to a
// running routing engine (STRP or SMRP), replacing the source's three
// process-wide function pointers (Routing_sendMsg/recvMsg/timedRecvMsg)
// with an ordinary interface constructed once per engine instance.
package routing

import (
	"context"
	"io"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// Header carries the per-packet metadata a caller receives alongside a
// delivered payload.
type Header struct {
	Source      mactp.Addr
	Destination mactp.Addr
	PreviousHop mactp.Addr
	RSSI        int16
}

// Transport is the application-facing contract implemented by both the
// strp.Engine and the smrp.Engine. Send enqueues for best-effort delivery;
// Recv/TimedRecv deliver payloads addressed to this node.
type Transport interface {
	// Send enqueues payload for delivery towards dest and returns once it
	// is on the send queue, blocking while the queue is full until there
	// is room or ctx is cancelled. The boolean reports whether it was
	// accepted onto the send queue, not whether it was ever delivered -
	// this protocol makes no delivery guarantees.
	Send(ctx context.Context, dest mactp.Addr, payload []byte) bool

	// Recv blocks until a packet addressed to this node is available.
	Recv(ctx context.Context, buf []byte) (n int, hdr Header, err error)

	// TimedRecv blocks until a packet is available or timeout elapses, in
	// which case n is 0 and err is nil (a timeout is not an error).
	TimedRecv(ctx context.Context, buf []byte, timeout time.Duration) (n int, hdr Header, err error)

	// MetricsHeader/MetricsRow expose the reset-on-read counters described
	// in pkg/metrics, formatted as a CSV header/row pair.
	MetricsHeader() string
	MetricsRow(addr mactp.Addr) string

	// TopologyHeader/TopologyRows expose the current neighbour table as
	// CSV, formatted as described in pkg/topology.
	TopologyHeader() string
	TopologyRows(dst []byte, maxBytes int) (written int)

	// Close stops the engine's background workers and waits for them to
	// exit. It does not close the underlying mactp.Transport, which the
	// caller owns.
	Close() error
}

// NextHopTransport is additionally implemented by SMRP engines, which
// expose their randomized next-hop selection for callers that need to
// reason about routing decisions directly (mainly tests and the simulation
// harness).
type NextHopTransport interface {
	Transport
	NextHop(src, prev, dest mactp.Addr, maxTries int) mactp.Addr
}

var _ io.Closer = Transport(nil)
