package smrp

import (
	"context"
	"errors"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
	"github.com/arjunv/wsnmesh/pkg/routing"
	"github.com/arjunv/wsnmesh/pkg/wire"
)

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
			e.handleBeacon(hdr.SrcAddr, hdr.RSSI)
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

// observeNeighbour records addr and, unlike STRP, unconditionally marks
// every neighbour it hears from as an outbound forwarding target - SMRP
// has no single-parent link role, so every active neighbour is a
// candidate next hop. The link is set on every frame because Observe
// itself resets a non-parent neighbour's link to Idle.
func (e *Engine) observeNeighbour(addr mactp.Addr, rssi int16) {
	e.table.Observe(addr, rssi, mactp.Broadcast, 0, mactp.None)
	e.table.SetLink(addr, neighbor.Outbound)
}

func (e *Engine) handleBeacon(prevHop mactp.Addr, rssi int16) {
	e.metricsStore.IncBeaconsRecv(prevHop)
	e.observeNeighbour(prevHop, rssi)
}

func (e *Engine) handleData(frame []byte, prevHop mactp.Addr, rssi int16) {
	if len(frame) < 3 {
		e.logger.Debug().Msg("short data frame")
		return
	}
	dest := mactp.Addr(frame[1])
	src := mactp.Addr(frame[2])

	e.observeNeighbour(prevHop, rssi)

	if dest == e.cfg.Self {
		e.deliverLocal(frame, prevHop, rssi)
		return
	}
	e.forward(frame, src, prevHop, dest)
}

func (e *Engine) deliverLocal(frame []byte, prevHop mactp.Addr, rssi int16) {
	pkt, err := codec.DecodeData(frame)
	if err != nil {
		e.logger.Debug().Err(err).Msg("malformed data frame")
		return
	}
	if len(pkt.Payload) == 0 {
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

func (e *Engine) forward(frame []byte, src, prevHop, dest mactp.Addr) {
	nextHop := e.NextHop(src, prevHop, dest, e.cfg.MaxTries)
	if !e.cfg.Transport.Send(e.ctx, nextHop, frame) {
		e.logger.Warn().Uint8("src", uint8(src)).Uint8("via", uint8(nextHop)).Msg("forward failed")
	}
}

func (e *Engine) sendBeacon() {
	frame := codec.EncodeBeacon(wire.Beacon{})
	if e.cfg.Transport.Send(e.ctx, mactp.Broadcast, frame) {
		e.metricsStore.IncBeaconsSent()
	} else {
		e.logger.Warn().Msg("beacon send failed")
	}
}

// beaconWorker runs for every node, sink included. Unlike STRP, SMRP's
// steady-state beacon loop adds no extra jitter beyond the fixed
// BeaconInterval - only the discovery-phase beacons are jittered.
func (e *Engine) beaconWorker() {
	defer e.wg.Done()

	if !e.sleep(e.cfg.BeaconInterval) {
		return
	}
	for {
		e.sendBeacon()

		if time.Since(e.table.LastCleanup()) > e.cfg.NodeTimeout {
			e.table.Cleanup(e.cfg.NodeTimeout, mactp.None)
		}

		if !e.sleep(e.cfg.BeaconInterval) {
			return
		}
	}
}

// sendWorker dequeues application traffic and forwards it via a freshly
// sampled next hop for every send - there is no fixed route to reuse.
// Unlike STRP's jittered post-send sleep, the source sleeps a fixed one
// second here.
func (e *Engine) sendWorker() {
	defer e.wg.Done()

	for {
		item, err := e.sendQ.Dequeue(e.ctx)
		if err != nil {
			return
		}

		frame := codec.EncodeData(wire.DataPacket{
			Dest:    item.dest,
			Src:     e.cfg.Self,
			Payload: item.payload,
		})

		nextHop := e.NextHop(e.cfg.Self, mactp.Broadcast, item.dest, e.cfg.MaxTries)
		if !e.cfg.Transport.Send(e.ctx, nextHop, frame) {
			e.logger.Warn().Uint8("dest", uint8(item.dest)).Msg("send failed")
		}

		if !e.sleep(time.Second) {
			return
		}
	}
}
