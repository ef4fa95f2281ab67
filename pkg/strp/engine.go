// Package strp implements the tree-style, single-parent mesh routing
// engine: every non-sink node continuously maintains exactly one outbound
// link (its parent) chosen by a configurable Strategy, and forwards
// anything not addressed to itself one hop towards the sink.
package strp

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/metrics"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
	"github.com/arjunv/wsnmesh/pkg/queue"
	"github.com/arjunv/wsnmesh/pkg/routing"
	"github.com/arjunv/wsnmesh/pkg/topology"
	"github.com/arjunv/wsnmesh/pkg/wire"
)

const maxFrameSize = 512

var codec = wire.STRP{}

type sendItem struct {
	dest    mactp.Addr
	payload []byte
}

type recvItem struct {
	hdr     routing.Header
	payload []byte
}

// Engine is one node's running STRP instance: a neighbour table, a current
// parent, a send/receive queue pair, and the three background workers that
// drive discovery, forwarding, and beaconing.
type Engine struct {
	cfg          Config
	table        *neighbor.Table
	metricsStore *metrics.Store
	sendQ        *queue.Queue[sendItem]
	recvQ        *queue.Queue[recvItem]

	mu          sync.Mutex
	sendSeq     [256]uint16
	recvSeq     [256]uint16
	parentAddr  mactp.Addr
	loopyParent mactp.Addr

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New validates cfg, fills in defaults, and returns an Engine ready for
// Start. It does not touch the network or spawn any goroutines.
func New(cfg Config) (*Engine, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		table:        neighbor.New(cfg.Self),
		metricsStore: metrics.New(true),
		sendQ:        queue.New[sendItem](cfg.QueueCapacity),
		recvQ:        queue.New[recvItem](cfg.QueueCapacity),
		parentAddr:   mactp.None,
		loopyParent:  mactp.None,
		logger:       cfg.Logger.With().Str("component", "strp").Uint8("self", uint8(cfg.Self)).Logger(),
	}
	if cfg.Strategy == Fixed {
		e.parentAddr = cfg.FixedParent
	}
	return e, nil
}

func (e *Engine) isSink() bool { return e.cfg.Self == e.cfg.Sink }

func (e *Engine) currentParent() mactp.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.parentAddr
}

// Start runs neighbour discovery to completion (blocking) and then spawns
// the receive, send, and beacon workers. For the sink, no send worker is
// started - the sink never originates application traffic. Discovery
// itself always runs, even for the sink, since it's also when the node
// first broadcasts itself as a candidate parent for everyone else.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go e.recvWorker()

	if err := e.discover(); err != nil {
		e.cancel()
		e.wg.Wait()
		return err
	}

	e.wg.Add(1)
	go e.beaconWorker()

	if !e.isSink() {
		e.wg.Add(1)
		go e.sendWorker()
	}
	return nil
}

// Close stops all background workers and waits for them to exit. It does
// not close the underlying mactp.Transport, which the caller owns.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return nil
}

func jitter(loMs, hiMs int) time.Duration {
	return time.Duration(loMs+rand.Intn(hiMs-loMs+1)) * time.Millisecond
}

func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-e.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// discover is the senseNeighbours equivalent: broadcast beacons at jittered
// intervals for SenseDuration, then check whether a parent has been chosen
// by the concurrently-running receive worker's reactive parent-selection.
// Non-Fixed strategies retry the sense window indefinitely until some
// parent is found; Fixed strategy fails permanently if its configured
// parent is never observed as a neighbour within one window.
func (e *Engine) discover() error {
	if ac, ok := e.cfg.Transport.(mactp.AmbientControl); ok {
		ac.SetAmbient(false)
		defer ac.SetAmbient(true)
	}

	if e.cfg.Strategy != Fixed {
		e.mu.Lock()
		e.parentAddr = mactp.None
		e.mu.Unlock()
	}

	for {
		if e.ctx.Err() != nil {
			return e.ctx.Err()
		}

		start := time.Now()
		for time.Since(start) < e.cfg.SenseDuration {
			if !e.sleep(jitter(500, 1200)) {
				return e.ctx.Err()
			}
			e.sendBeacon()
		}

		if e.isSink() {
			return nil
		}

		parent := e.currentParent()
		if e.cfg.Strategy == Fixed {
			if _, ok := e.table.Get(parent); !ok {
				return fmt.Errorf("strp: configured parent %d never observed as a neighbour", parent)
			}
			e.logger.Info().Uint8("parent", uint8(parent)).Msg("discovery complete")
			return nil
		}

		if parent == mactp.None {
			e.logger.Info().Msg("no neighbours detected, retrying discovery")
			continue
		}
		e.logger.Info().Uint8("parent", uint8(parent)).Msg("discovery complete")
		return nil
	}
}

// Send enqueues payload for delivery towards dest, blocking until there is
// room on the send queue or ctx is cancelled.
func (e *Engine) Send(ctx context.Context, dest mactp.Addr, payload []byte) bool {
	if e.isSink() {
		return false
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return e.sendQ.Enqueue(ctx, sendItem{dest: dest, payload: cp}) == nil
}

// Recv blocks until a packet addressed to this node is available.
func (e *Engine) Recv(ctx context.Context, buf []byte) (int, routing.Header, error) {
	item, err := e.recvQ.Dequeue(ctx)
	if err != nil {
		return 0, routing.Header{}, err
	}
	n := copy(buf, item.payload)
	return n, item.hdr, nil
}

// TimedRecv blocks until a packet is available or timeout elapses.
func (e *Engine) TimedRecv(ctx context.Context, buf []byte, timeout time.Duration) (int, routing.Header, error) {
	item, ok, err := e.recvQ.TimedDequeue(ctx, timeout)
	if err != nil {
		return 0, routing.Header{}, err
	}
	if !ok {
		return 0, routing.Header{}, nil
	}
	n := copy(buf, item.payload)
	return n, item.hdr, nil
}

func (e *Engine) MetricsHeader() string { return e.metricsStore.Header() }

func (e *Engine) MetricsRow(addr mactp.Addr) string { return e.metricsStore.ReadRow(addr) }

func (e *Engine) TopologyHeader() string { return topology.STRPHeader }

// TopologyRows formats the current neighbour table as CSV, parent row
// first, into dst.
func (e *Engine) TopologyRows(dst []byte, maxBytes int) int {
	snap := e.table.Snapshot()
	parent := e.currentParent()
	return topology.Rows(dst, maxBytes, true, e.cfg.Self, snap, parent, parent != mactp.None, time.Now())
}

var _ routing.Transport = (*Engine)(nil)
