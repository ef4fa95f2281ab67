// Package simmac implements an in-process, channel-based broadcast medium
// satisfying mactp.Transport, used to drive unit and integration tests
// without a real radio. Every node registered on a Medium can hear every
// other node's transmissions, with RSSI derived from a caller-supplied
// function (distance, a fixed table, or pure randomness).
package simmac

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// RSSIFunc computes the simulated signal strength of a frame sent from src
// to dst.
type RSSIFunc func(src, dst mactp.Addr) int16

// FixedRSSI returns an RSSIFunc that always reports rssi, regardless of the
// pair of nodes involved.
func FixedRSSI(rssi int16) RSSIFunc {
	return func(mactp.Addr, mactp.Addr) int16 { return rssi }
}

// Medium is a shared broadcast bus for a set of simulated nodes.
type Medium struct {
	rssi RSSIFunc

	mu    sync.Mutex
	nodes map[mactp.Addr]*node
	drop  map[edge]bool // src,dst pairs that never hear each other - used to simulate partial topologies
}

type edge struct{ src, dst mactp.Addr }

type frame struct {
	hdr     mactp.Header
	payload []byte
}

type node struct {
	inbox   chan frame
	ambient bool
}

// NewMedium creates a medium using rssi to compute per-frame signal
// strength. If rssi is nil, FixedRSSI(-50) is used.
func NewMedium(rssi RSSIFunc) *Medium {
	if rssi == nil {
		rssi = FixedRSSI(-50)
	}
	return &Medium{
		rssi:  rssi,
		nodes: make(map[mactp.Addr]*node),
		drop:  make(map[edge]bool),
	}
}

// Join registers addr on the medium and returns a Transport for it. inboxSize
// bounds how many unread frames can queue up for the node before Send starts
// silently dropping them (simulating collisions on a busy channel).
func (m *Medium) Join(addr mactp.Addr, inboxSize int) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := &node{inbox: make(chan frame, inboxSize)}
	m.nodes[addr] = n
	return &Transport{medium: m, self: addr, node: n}
}

// Partition prevents src and dst from hearing each other's frames in either
// direction, simulating nodes that are out of range.
func (m *Medium) Partition(a, b mactp.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop[edge{a, b}] = true
	m.drop[edge{b, a}] = true
}

func (m *Medium) canHear(src, dst mactp.Addr) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.drop[edge{src, dst}]
}

// Transport is a mactp.Transport bound to one node on a Medium.
type Transport struct {
	medium *Medium
	self   mactp.Addr
	node   *node
}

type target struct {
	addr mactp.Addr
	n    *node
}

func (t *Transport) Send(ctx context.Context, dest mactp.Addr, payload []byte) bool {
	t.medium.mu.Lock()
	var targets []target
	if dest == mactp.Broadcast {
		for addr, n := range t.medium.nodes {
			if addr != t.self {
				targets = append(targets, target{addr, n})
			}
		}
	} else if n, ok := t.medium.nodes[dest]; ok {
		targets = append(targets, target{dest, n})
	}
	t.medium.mu.Unlock()

	buf := make([]byte, len(payload))
	copy(buf, payload)

	ok := false
	for _, tg := range targets {
		if !t.medium.canHear(t.self, tg.addr) {
			continue
		}
		fr := frame{
			hdr:     mactp.Header{SrcAddr: t.self, RSSI: t.medium.rssi(t.self, tg.addr)},
			payload: buf,
		}
		select {
		case tg.n.inbox <- fr:
			ok = true
		default:
			// inbox full: simulate a dropped/collided frame
		}
	}
	return ok || dest == mactp.Broadcast
}

func (t *Transport) Recv(ctx context.Context, buf []byte) (int, mactp.Header, error) {
	select {
	case fr := <-t.node.inbox:
		n := copy(buf, fr.payload)
		return n, fr.hdr, nil
	case <-ctx.Done():
		return 0, mactp.Header{}, ctx.Err()
	}
}

func (t *Transport) TimedRecv(ctx context.Context, buf []byte, timeout time.Duration) (int, mactp.Header, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case fr := <-t.node.inbox:
		n := copy(buf, fr.payload)
		return n, fr.hdr, nil
	case <-timer.C:
		return 0, mactp.Header{}, mactp.ErrTimeout
	case <-ctx.Done():
		return 0, mactp.Header{}, ctx.Err()
	}
}

func (t *Transport) Close() error {
	return nil
}

func (t *Transport) SetAmbient(enabled bool) {
	t.medium.mu.Lock()
	t.node.ambient = enabled
	t.medium.mu.Unlock()
}

// Jitter returns a uniformly random duration in [lo, hi), matching the
// source's randInRange(lo_ms, hi_ms) used for beacon/send jitter.
func Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}
