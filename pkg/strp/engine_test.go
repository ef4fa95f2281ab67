package strp

import (
	"context"
	"testing"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/mactp/simmac"
)

func newTestEngine(t *testing.T, medium *simmac.Medium, self, sink mactp.Addr, strategy Strategy, fixedParent mactp.Addr) *Engine {
	t.Helper()
	tr := medium.Join(self, 32)
	e, err := New(Config{
		Self:           self,
		Sink:           sink,
		Strategy:       strategy,
		FixedParent:    fixedParent,
		Transport:      tr,
		SenseDuration:  time.Second,
		BeaconInterval: 2 * time.Second,
		NodeTimeout:    time.Hour, // keep cleanup out of the way of short-lived tests
		QueueCapacity:  8,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// TestThreeNodeChainDeliversToSink builds a sink (1) and two relays (2, 3)
// on a shared simulated medium, lets discovery settle under the NextLower
// strategy, then sends from the far node through the chain to the sink.
func TestThreeNodeChainDeliversToSink(t *testing.T) {
	medium := simmac.NewMedium(simmac.FixedRSSI(-50))

	sink := newTestEngine(t, medium, 1, 1, NextLower, mactp.None)
	mid := newTestEngine(t, medium, 2, 1, NextLower, mactp.None)
	far := newTestEngine(t, medium, 3, 1, NextLower, mactp.None)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 3)
	go func() { errCh <- sink.Start(ctx) }()
	time.Sleep(50 * time.Millisecond) // give the sink a head start beaconing
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

	if ok := far.Send(ctx, 1, []byte("hello")); !ok {
		t.Fatal("Send returned false")
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer recvCancel()
	buf := make([]byte, 64)
	n, hdr, err := sink.Recv(recvCtx, buf)
	if err != nil {
		t.Fatalf("sink.Recv: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("payload = %q, want %q", buf[:n], "hello")
	}
	if hdr.Source != 3 {
		t.Errorf("Header.Source = %d, want 3", hdr.Source)
	}
}

func TestFixedStrategyFailsWhenParentNeverSeen(t *testing.T) {
	medium := simmac.NewMedium(simmac.FixedRSSI(-50))
	lonely := newTestEngine(t, medium, 5, 1, Fixed, 9) // address 9 never joins the medium
	lonely.cfg.SenseDuration = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := lonely.Start(ctx); err == nil {
		t.Error("expected Start to fail when the fixed parent is never observed")
	}
}

func TestSendOnSinkIsRejected(t *testing.T) {
	medium := simmac.NewMedium(simmac.FixedRSSI(-50))
	sink := newTestEngine(t, medium, 1, 1, NextLower, mactp.None)
	if sink.Send(context.Background(), 2, []byte("x")) {
		t.Error("Send on the sink should always return false")
	}
}
