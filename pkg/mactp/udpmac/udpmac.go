// Package udpmac implements mactp.Transport over UDP broadcast, letting
// separate OS processes stand in for separate radio-equipped nodes on a LAN.
// It is a simulation aid, not a hardware driver: there is no real radio, so
// RSSI is synthesized from a caller-supplied estimator rather than measured.
//
// The wire framing and socket handling style are grounded on
// pkg/nspkt/listener.go's connectionless UDP packet listener.
package udpmac

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// RSSIEstimator computes a synthetic signal strength for a received frame,
// given the sender's claimed address. The default estimator reports a fixed
// value.
type RSSIEstimator func(src mactp.Addr) int16

// frame wire format: [addr:u8][dest:u8][payload...]
// addr is the sender's mesh address, carried out-of-band from the UDP
// source address so nodes can run behind NAT/loopback during local testing.
// dest is the mesh destination; every node receives the UDP broadcast, and
// receivers discard frames addressed to neither themselves nor Broadcast.
const frameHeaderSize = 2

// Transport broadcasts mesh frames as UDP datagrams on a fixed port,
// tagging each with the sender's one-byte mesh address.
type Transport struct {
	self Addr
	conn *net.UDPConn
	dst  *net.UDPAddr
	rssi RSSIEstimator

	ambient atomic.Bool

	mu     sync.Mutex
	closed bool

	ms *metricSet
}

type metricSet struct {
	set      *metrics.Set
	txFrames *metrics.Counter
	txBytes  *metrics.Counter
	txErr    *metrics.Counter
	rxFrames *metrics.Counter
	rxBytes  *metrics.Counter
	rxShort  *metrics.Counter
}

func newMetricSet(addr mactp.Addr) *metricSet {
	label := fmt.Sprintf(`{addr="%s"}`, addr)
	set := metrics.NewSet()
	return &metricSet{
		set:      set,
		txFrames: set.NewCounter(`wsnmesh_mac_tx_frames_total` + label),
		txBytes:  set.NewCounter(`wsnmesh_mac_tx_bytes_total` + label),
		txErr:    set.NewCounter(`wsnmesh_mac_tx_errors_total` + label),
		rxFrames: set.NewCounter(`wsnmesh_mac_rx_frames_total` + label),
		rxBytes:  set.NewCounter(`wsnmesh_mac_rx_bytes_total` + label),
		rxShort:  set.NewCounter(`wsnmesh_mac_rx_short_frames_total` + label),
	}
}

// Addr is re-exported for convenience so callers need not import mactp just
// to construct a Transport.
type Addr = mactp.Addr

// Config configures a UDP-broadcast transport.
type Config struct {
	// Self is this node's mesh address.
	Self Addr

	// BroadcastAddr is the UDP broadcast/multicast address all nodes in
	// the simulated mesh send to and listen on, e.g. "255.255.255.255:7575"
	// or a multicast group address.
	BroadcastAddr string

	// RSSI estimates signal strength for received frames. If nil, a fixed
	// -50 is reported for every frame.
	RSSI RSSIEstimator
}

// New binds a UDP socket and returns a ready-to-use Transport.
func New(cfg Config) (*Transport, error) {
	dst, err := net.ResolveUDPAddr("udp4", cfg.BroadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("udpmac: resolve broadcast addr: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: dst.Port})
	if err != nil {
		return nil, fmt.Errorf("udpmac: listen: %w", err)
	}

	rssi := cfg.RSSI
	if rssi == nil {
		rssi = func(mactp.Addr) int16 { return -50 }
	}

	t := &Transport{
		self: cfg.Self,
		conn: conn,
		dst:  dst,
		rssi: rssi,
		ms:   newMetricSet(cfg.Self),
	}
	t.ambient.Store(true)
	return t, nil
}

func (t *Transport) Send(ctx context.Context, dest mactp.Addr, payload []byte) bool {
	buf := make([]byte, frameHeaderSize+len(payload))
	buf[0] = byte(t.self)
	buf[1] = byte(dest)
	copy(buf[frameHeaderSize:], payload)

	if _, err := t.conn.WriteToUDP(buf, t.dst); err != nil {
		t.ms.txErr.Inc()
		return false
	}
	t.ms.txFrames.Inc()
	t.ms.txBytes.Add(len(buf))
	return true
}

func (t *Transport) Recv(ctx context.Context, buf []byte) (int, mactp.Header, error) {
	return t.TimedRecv(ctx, buf, 0)
}

// TimedRecv blocks until a frame arrives or timeout elapses (0 means no
// deadline). Because net.UDPConn's deadline API isn't context-aware, a
// background goroutine closes the connection when ctx is cancelled while a
// read is outstanding is NOT done here (Close() is the only unblock path for
// a live conn); callers are expected to call Close() to unblock Recv/
// TimedRecv during shutdown, same as the underlying net.Conn contract.
func (t *Transport) TimedRecv(ctx context.Context, buf []byte, timeout time.Duration) (int, mactp.Header, error) {
	if t.isClosed() {
		return 0, mactp.Header{}, mactp.ErrClosed
	}

	if timeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		t.conn.SetReadDeadline(time.Time{})
	}

	raw := make([]byte, frameHeaderSize+len(buf))
	n, _, err := t.conn.ReadFromUDP(raw)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, mactp.Header{}, mactp.ErrTimeout
		}
		if t.isClosed() {
			return 0, mactp.Header{}, mactp.ErrClosed
		}
		return 0, mactp.Header{}, err
	}
	if n < frameHeaderSize {
		t.ms.rxShort.Inc()
		return 0, mactp.Header{}, fmt.Errorf("udpmac: short frame (%d bytes)", n)
	}

	src := mactp.Addr(raw[0])
	if src == t.self {
		// our own broadcast echoed back to us - not a real reception
		return 0, mactp.Header{}, mactp.ErrTimeout
	}
	if dst := mactp.Addr(raw[1]); dst != t.self && dst != mactp.Broadcast {
		// addressed to another node - not a reception for us
		return 0, mactp.Header{}, mactp.ErrTimeout
	}

	t.ms.rxFrames.Inc()
	t.ms.rxBytes.Add(n)

	hdr := mactp.Header{SrcAddr: src, RSSI: t.rssi(src)}
	return copy(buf, raw[frameHeaderSize:n]), hdr, nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

// SetAmbient implements mactp.AmbientControl. udpmac has no actual ambient
// noise sensor; this just records the desired state, which nothing else
// in the transport reads.
func (t *Transport) SetAmbient(enabled bool) {
	t.ambient.Store(enabled)
}

// LocalAddr returns the bound local UDP address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// LocalAddrPort is a netip convenience wrapper around LocalAddr.
func (t *Transport) LocalAddrPort() netip.AddrPort {
	if a, ok := t.conn.LocalAddr().(*net.UDPAddr); ok {
		return a.AddrPort()
	}
	return netip.AddrPort{}
}

// WritePrometheus writes this transport's counters to w, in the same style
// as pkg/nspkt/listener.go's Listener.WritePrometheus.
func (t *Transport) WritePrometheus(w io.Writer) {
	t.ms.set.WritePrometheus(w)
}
