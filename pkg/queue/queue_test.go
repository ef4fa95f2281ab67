package queue

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := q.Enqueue(ctx, i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if q.TryEnqueue(99) {
		t.Error("expected full queue to reject TryEnqueue")
	}

	for i := 0; i < 4; i++ {
		v, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if v != i {
			t.Errorf("got %d, want %d", v, i)
		}
	}

	if _, ok := q.TryDequeue(); ok {
		t.Error("expected empty queue to fail TryDequeue")
	}
}

func TestTimedDequeueTimeout(t *testing.T) {
	q := New[int](1)
	_, ok, err := q.TimedDequeue(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected timeout on empty queue")
	}
}

func TestTimedDequeueSucceeds(t *testing.T) {
	q := New[int](1)
	q.TryEnqueue(42)
	v, ok, err := q.TimedDequeue(context.Background(), time.Second)
	if err != nil || !ok || v != 42 {
		t.Fatalf("got (%d, %v, %v), want (42, true, nil)", v, ok, err)
	}
}

func TestEnqueueContextCancel(t *testing.T) {
	q := New[int](1)
	q.TryEnqueue(1) // fill it

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, 2); err == nil {
		t.Error("expected cancelled context to unblock Enqueue with an error")
	}
}

func TestFreeCapInvariant(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 5; i++ {
		q.TryEnqueue(i)
	}
	if q.Free()+q.Len() != q.Cap() {
		t.Errorf("free(%d)+len(%d) != cap(%d)", q.Free(), q.Len(), q.Cap())
	}
}

// TestFIFOPrefixProperty checks that for any sequence of TryEnqueue calls
// interleaved with TryDequeue calls, dequeued values always come out in the
// order they were enqueued.
func TestFIFOPrefixProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(rt, "capacity")
		q := New[int](capacity)

		var out []int
		next := 0

		steps := rapid.IntRange(1, 64).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "enqueue") {
				if q.TryEnqueue(next) {
					next++
				}
			} else {
				if v, ok := q.TryDequeue(); ok {
					out = append(out, v)
				}
			}
			if q.Free()+q.Len() != q.Cap() {
				rt.Fatalf("free+len != cap after step %d", i)
			}
		}

		// Enqueued ids are strictly increasing, so any FIFO-faithful dequeue
		// order must also be strictly increasing.
		for i := 1; i < len(out); i++ {
			if out[i] <= out[i-1] {
				rt.Fatalf("dequeue order violated: out[%d]=%d not after out[%d]=%d", i, out[i], i-1, out[i-1])
			}
		}
	})
}
