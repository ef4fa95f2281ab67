package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// noopTransport satisfies mactp.Transport without ever producing or
// consuming a frame, enough to exercise engine construction in tests that
// never call Start.
type noopTransport struct{}

func (noopTransport) Send(ctx context.Context, dest mactp.Addr, payload []byte) bool { return true }

func (noopTransport) Recv(ctx context.Context, buf []byte) (int, mactp.Header, error) {
	<-ctx.Done()
	return 0, mactp.Header{}, ctx.Err()
}

func (noopTransport) TimedRecv(ctx context.Context, buf []byte, timeout time.Duration) (int, mactp.Header, error) {
	return 0, mactp.Header{}, mactp.ErrTimeout
}

func (noopTransport) Close() error { return nil }

func noopLogger() zerolog.Logger { return zerolog.Nop() }
