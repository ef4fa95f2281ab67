// Package smrp implements the multipath random-forwarding mesh routing
// engine: every node tracks the neighbours it has directly heard from and,
// for each frame not addressed to itself, forwards to a randomly sampled
// active neighbour rather than maintaining a fixed parent.
package smrp

import (
	"context"
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

var codec = wire.SMRP{}

type sendItem struct {
	dest    mactp.Addr
	payload []byte
}

type recvItem struct {
	hdr     routing.Header
	payload []byte
}

// Engine is one node's running SMRP instance.
type Engine struct {
	cfg          Config
	table        *neighbor.Table
	metricsStore *metrics.Store
	sendQ        *queue.Queue[sendItem]
	recvQ        *queue.Queue[recvItem]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New validates cfg, fills in defaults, and returns an Engine ready for
// Start.
func New(cfg Config) (*Engine, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		table:        neighbor.New(cfg.Self),
		metricsStore: metrics.New(false),
		sendQ:        queue.New[sendItem](cfg.QueueCapacity),
		recvQ:        queue.New[recvItem](cfg.QueueCapacity),
		logger:       cfg.Logger.With().Str("component", "smrp").Uint8("self", uint8(cfg.Self)).Logger(),
	}
	return e, nil
}

func (e *Engine) isSink() bool { return e.cfg.Self == e.cfg.Sink }

// Start runs neighbour discovery to completion (blocking) and then spawns
// the receive, send, and beacon workers. No send worker is started for the
// sink.
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

// Close stops all background workers and waits for them to exit.
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

// discover broadcasts beacons at jittered intervals for SenseDuration, then
// retries indefinitely until at least one neighbour has been observed.
// Unlike STRP, SMRP has no parent concept and no sink special case here:
// every node, including the sink, waits for its first neighbour.
func (e *Engine) discover() error {
	for {
		if e.ctx.Err() != nil {
			return e.ctx.Err()
		}

		start := time.Now()
		for time.Since(start) < e.cfg.SenseDuration {
			e.sendBeacon()
			if !e.sleep(jitter(800, 1200)) {
				return e.ctx.Err()
			}
		}

		if e.table.NumActive() > 0 {
			e.logger.Info().Int("active", e.table.NumActive()).Msg("discovery complete")
			return nil
		}
		e.logger.Info().Msg("no neighbours detected, retrying discovery")
	}
}

// NextHop samples up to maxTries random active addresses in [min(addr),
// max(addr)] and returns the first one that is neither src nor prev,
// falling back to dest (or Sink, if dest is mactp.None) if none qualify
// within the budget.
func (e *Engine) NextHop(src, prev, dest mactp.Addr, maxTries int) mactp.Addr {
	min, max, ok := e.table.Bounds()
	if ok {
		for i := 0; i < maxTries; i++ {
			candidate := min + mactp.Addr(rand.Intn(int(max-min)+1))
			entry, found := e.table.Get(candidate)
			if found && entry.State == neighbor.Active && candidate != src && candidate != prev {
				return candidate
			}
		}
	}
	if dest == mactp.None {
		return e.cfg.Sink
	}
	return dest
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

func (e *Engine) TopologyHeader() string { return topology.SMRPHeader }

// TopologyRows formats the current neighbour table as CSV into dst.
func (e *Engine) TopologyRows(dst []byte, maxBytes int) int {
	snap := e.table.Snapshot()
	return topology.Rows(dst, maxBytes, false, e.cfg.Self, snap, mactp.None, false, time.Now())
}

var (
	_ routing.Transport        = (*Engine)(nil)
	_ routing.NextHopTransport = (*Engine)(nil)
)
