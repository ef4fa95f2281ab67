package smrp

import (
	"context"
	"testing"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/mactp/simmac"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
)

func newTestEngine(t *testing.T, medium *simmac.Medium, self, sink mactp.Addr) *Engine {
	t.Helper()
	tr := medium.Join(self, 32)
	e, err := New(Config{
		Self:           self,
		Sink:           sink,
		Transport:      tr,
		SenseDuration:  time.Second,
		BeaconInterval: 2 * time.Second,
		NodeTimeout:    time.Hour,
		MaxTries:       4,
		QueueCapacity:  8,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNextHopExcludesSrcAndPrev(t *testing.T) {
	medium := simmac.NewMedium(simmac.FixedRSSI(-50))
	e := newTestEngine(t, medium, 5, 1)

	for _, addr := range []mactp.Addr{2, 3, 4} {
		e.table.Observe(addr, -50, mactp.Broadcast, 0, mactp.None)
		e.table.SetLink(addr, neighbor.Outbound)
	}

	for i := 0; i < 50; i++ {
		got := e.NextHop(3, 4, 9, 8)
		if got == 3 || got == 4 {
			t.Fatalf("NextHop returned excluded address %d", got)
		}
	}
}

func TestNextHopFallsBackWithNoNeighbours(t *testing.T) {
	medium := simmac.NewMedium(simmac.FixedRSSI(-50))
	e := newTestEngine(t, medium, 5, 1)

	if got := e.NextHop(3, 4, 9, 4); got != 9 {
		t.Errorf("NextHop with empty table = %d, want dest 9", got)
	}
	if got := e.NextHop(3, 4, mactp.None, 4); got != 1 {
		t.Errorf("NextHop with empty table and no dest = %d, want sink 1", got)
	}
}

func TestThreeNodeMeshDeliversToSink(t *testing.T) {
	medium := simmac.NewMedium(simmac.FixedRSSI(-50))

	sink := newTestEngine(t, medium, 1, 1)
	mid := newTestEngine(t, medium, 2, 1)
	far := newTestEngine(t, medium, 3, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 3)
	go func() { errCh <- sink.Start(ctx) }()
	go func() { errCh <- mid.Start(ctx) }()
	go func() { errCh <- far.Start(ctx) }()
	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}
	defer sink.Close()
	defer mid.Close()
	defer far.Close()

	if ok := far.Send(ctx, 1, []byte("hi")); !ok {
		t.Fatal("Send returned false")
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer recvCancel()
	buf := make([]byte, 64)
	n, hdr, err := sink.Recv(recvCtx, buf)
	if err != nil {
		t.Fatalf("sink.Recv: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Errorf("payload = %q, want %q", buf[:n], "hi")
	}
	if hdr.Source != 3 {
		t.Errorf("Header.Source = %d, want 3", hdr.Source)
	}
}

func TestSendOnSinkIsRejected(t *testing.T) {
	medium := simmac.NewMedium(simmac.FixedRSSI(-50))
	sink := newTestEngine(t, medium, 1, 1)
	if sink.Send(context.Background(), 2, []byte("x")) {
		t.Error("Send on the sink should always return false")
	}
}
