package strp

import (
	"context"
	"errors"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
	"github.com/arjunv/wsnmesh/pkg/routing"
	"github.com/arjunv/wsnmesh/pkg/wire"
)

// recvWorker is the only goroutine that ever calls the underlying
// transport's TimedRecv, mirroring the source's single receive thread: it
// classifies every inbound frame as a beacon, a data frame to forward, or
// a data frame to deliver locally.
func (e *Engine) recvWorker() {
	defer e.wg.Done()

	buf := make([]byte, maxFrameSize)
	for {
		if e.ctx.Err() != nil {
			return
		}

		n, hdr, err := e.cfg.Transport.TimedRecv(e.ctx, buf, time.Second)
		if err != nil {
			switch {
			case errors.Is(err, mactp.ErrTimeout):
				continue
			case errors.Is(err, context.Canceled), errors.Is(err, mactp.ErrClosed):
				return
			default:
				e.logger.Debug().Err(err).Msg("recv error")
				continue
			}
		}
		if n < 1 {
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		switch {
		case wire.IsBeacon(frame[0]):
			e.handleBeacon(frame, hdr.SrcAddr, hdr.RSSI)
		case wire.IsDataFrame(frame[0]):
			e.handleData(frame, hdr.SrcAddr, hdr.RSSI)
		default:
			e.logger.Debug().Uint8("ctrl", frame[0]).Msg("unknown control byte")
			continue
		}

		if !e.sleep(jitter(700, 799)) {
			return
		}
	}
}

func (e *Engine) handleBeacon(frame []byte, prevHop mactp.Addr, rssi int16) {
	beacon, err := codec.DecodeBeacon(frame)
	if err != nil {
		e.logger.Debug().Err(err).Msg("malformed beacon")
		return
	}
	e.metricsStore.IncBeaconsRecv(prevHop)

	currentParent := e.currentParent()
	res := e.table.Observe(prevHop, rssi, beacon.Parent, beacon.ParentRSSI, currentParent)

	if res.AdvertisesMe && currentParent == prevHop && prevHop < e.cfg.Self {
		e.logger.Info().Uint8("addr", uint8(prevHop)).Msg("direct loop detected")
		e.changeParent()
		return
	}

	if res.IsNew && e.cfg.Strategy != Fixed && !e.isSink() && !res.AdvertisesMe && prevHop != currentParent {
		e.maybeAdoptNewNeighbour(prevHop, rssi, currentParent)
	}
}

func (e *Engine) handleData(frame []byte, prevHop mactp.Addr, rssi int16) {
	if len(frame) < 3 {
		e.logger.Debug().Msg("short data frame")
		return
	}
	dest := mactp.Addr(frame[1])
	src := mactp.Addr(frame[2])

	// Mirrors the source calling updateActiveNodes with parent=BROADCAST
	// on every data frame: the sender is tracked as a neighbour, but its
	// parent advertisement fields are left untouched.
	e.table.Observe(prevHop, rssi, mactp.Broadcast, 0, e.currentParent())

	if dest == e.cfg.Self {
		e.deliverLocal(frame, prevHop, rssi)
		return
	}
	e.forward(frame, src, prevHop)
}

func (e *Engine) deliverLocal(frame []byte, prevHop mactp.Addr, rssi int16) {
	pkt, err := codec.DecodeData(frame)
	if err != nil {
		e.logger.Debug().Err(err).Msg("malformed data frame")
		return
	}

	e.mu.Lock()
	dup := pkt.Seq <= e.recvSeq[pkt.Src] && e.recvSeq[pkt.Src] != 0
	if !dup {
		e.recvSeq[pkt.Src] = pkt.Seq
	}
	e.mu.Unlock()
	if dup {
		return
	}

	item := recvItem{
		hdr: routing.Header{
			Source:      pkt.Src,
			Destination: pkt.Dest,
			PreviousHop: prevHop,
			RSSI:        rssi,
		},
		payload: pkt.Payload,
	}
	if !e.recvQ.TryEnqueue(item) {
		e.logger.Warn().Msg("receive queue full, dropping delivered packet")
	}
}

func (e *Engine) forward(frame []byte, src, prevHop mactp.Addr) {
	currentParent := e.currentParent()

	e.mu.Lock()
	loopy := e.loopyParent
	if (src == e.cfg.Self || src == currentParent) && prevHop != loopy {
		if src == e.cfg.Self {
			e.loopyParent = prevHop
		} else {
			e.loopyParent = currentParent
		}
		loopy = e.loopyParent
		e.mu.Unlock()
		e.logger.Info().Uint8("loopyParent", uint8(loopy)).Msg("loop detected")
		e.changeParent()
		currentParent = e.currentParent()
	} else {
		e.mu.Unlock()
	}

	if !e.cfg.Transport.Send(e.ctx, currentParent, frame) {
		e.logger.Warn().Uint8("src", uint8(src)).Uint8("via", uint8(currentParent)).Msg("forward failed")
	}
}

// changeParent runs a full rescan of the neighbour table, used when the
// current parent is lost to a detected loop or a cleanup timeout. It is
// distinct from maybeAdoptNewNeighbour, which only evaluates a single
// freshly-discovered candidate against the current parent.
func (e *Engine) changeParent() {
	snapshot := e.table.Snapshot()
	currentParent := e.currentParent()

	newParent := selectParent(e.cfg.Strategy, e.cfg.Self, e.cfg.FixedParent, snapshot, currentParent)
	e.setParent(currentParent, newParent)
	e.metricsStore.IncParentChanges()
	e.logger.Info().Uint8("prev", uint8(currentParent)).Uint8("new", uint8(newParent)).Msg("parent reselected")
}

// maybeAdoptNewNeighbour is the inline "does this single newly-discovered
// neighbour improve on my current parent" check, evaluated once per brand
// new neighbour rather than rescanning the whole table.
func (e *Engine) maybeAdoptNewNeighbour(candidate mactp.Addr, candidateRSSI int16, currentParent mactp.Addr) {
	currentParentRSSI := minRSSI
	if ent, ok := e.table.Get(currentParent); ok {
		currentParentRSSI = ent.RSSI
	}
	if !fitsBetterThanCurrent(e.cfg.Strategy, e.cfg.Self, candidate, currentParent, candidateRSSI, currentParentRSSI) {
		return
	}

	e.setParent(currentParent, candidate)
	e.metricsStore.IncParentChanges()
	e.logger.Info().Uint8("prev", uint8(currentParent)).Uint8("new", uint8(candidate)).Msg("parent changed")
	e.sendBeacon()
}

func (e *Engine) setParent(old, newParent mactp.Addr) {
	e.table.SetLink(newParent, neighbor.Outbound)
	if old != mactp.None {
		e.table.SetLink(old, neighbor.Idle)
	}
	e.mu.Lock()
	e.parentAddr = newParent
	e.mu.Unlock()
}

func (e *Engine) sendBeacon() {
	parent := e.currentParent()
	rssi := minRSSI
	if ent, ok := e.table.Get(parent); ok {
		rssi = ent.RSSI
	}

	frame := codec.EncodeBeacon(wire.Beacon{Parent: parent, ParentRSSI: rssi})
	if e.cfg.Transport.Send(e.ctx, mactp.Broadcast, frame) {
		e.metricsStore.IncBeaconsSent()
	} else {
		e.logger.Warn().Msg("beacon send failed")
	}
}

// beaconWorker runs for every node, sink included: it's also how the sink
// advertises itself as a candidate parent.
func (e *Engine) beaconWorker() {
	defer e.wg.Done()

	if !e.sleep(e.cfg.BeaconInterval) {
		return
	}
	for {
		if !e.sleep(jitter(500, 1200)) {
			return
		}
		e.sendBeacon()

		if time.Since(e.table.LastCleanup()) > e.cfg.NodeTimeout {
			e.cleanup()
		}

		if !e.sleep(e.cfg.BeaconInterval) {
			return
		}
	}
}

func (e *Engine) cleanup() {
	parent := e.currentParent()
	parentInactive := e.table.Cleanup(e.cfg.NodeTimeout, parent)
	if parentInactive {
		e.logger.Info().Uint8("parent", uint8(parent)).Msg("parent inactive")
		e.changeParent()
	}
}

// sendWorker is the only goroutine that ever dequeues application traffic
// and stamps it with a per-destination sequence number, mirroring the
// source's single send thread (never started for the sink).
func (e *Engine) sendWorker() {
	defer e.wg.Done()

	for {
		item, err := e.sendQ.Dequeue(e.ctx)
		if err != nil {
			return
		}

		e.mu.Lock()
		e.sendSeq[item.dest]++
		seq := e.sendSeq[item.dest]
		e.mu.Unlock()

		frame := codec.EncodeData(wire.DataPacket{
			Dest:    item.dest,
			Src:     e.cfg.Self,
			Seq:     seq,
			HasSeq:  true,
			Payload: item.payload,
		})

		parent := e.currentParent()
		if !e.cfg.Transport.Send(e.ctx, parent, frame) {
			e.logger.Warn().Uint8("dest", uint8(item.dest)).Msg("send failed")
		}

		if !e.sleep(jitter(500, 1200)) {
			return
		}
	}
}
