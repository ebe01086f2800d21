package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type scriptedReader struct {
	mu        sync.Mutex
	failures  int
	msg       kafka.Message
	delivered bool
	fetches   []time.Time
	committed []kafka.Message
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	r.fetches = append(r.fetches, time.Now())
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unavailable")
	}
	if !r.delivered {
		r.delivered = true
		r.mu.Unlock()
		return r.msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error { return nil }

type stepBackoff struct {
	step   time.Duration
	next   time.Duration
	resets int
}

func (b *stepBackoff) NextBackOff() time.Duration {
	b.next += b.step
	return b.next
}

func (b *stepBackoff) Reset() {
	b.next = 0
	b.resets++
}

func TestConsumerBacksOffOnFetchErrors(t *testing.T) {
	reader := &scriptedReader{failures: 3, msg: kafka.Message{Topic: "runs", Value: []byte("x")}}
	bo := &stepBackoff{step: 20 * time.Millisecond}
	handled := make(chan []byte, 1)
	c := &Consumer{
		reader: reader,
		handle: func(_ context.Context, v []byte) error {
			handled <- v
			return nil
		},
		fetchBackoff: bo,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case v := <-handled:
		if string(v) != "x" {
			t.Errorf("handled %q, want %q", v, "x")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not handled after fetch errors cleared")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start returned %v, want context.Canceled", err)
	}

	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.fetches) < 4 {
		t.Fatalf("got %d fetches, want at least 4", len(reader.fetches))
	}
	// Waits of 20ms, 40ms and 60ms separate the four fetches.
	if gap := reader.fetches[3].Sub(reader.fetches[0]); gap < 120*time.Millisecond {
		t.Errorf("fetch retries spanned %v, want at least 120ms", gap)
	}
	if bo.resets == 0 {
		t.Error("backoff not reset after a successful fetch")
	}
	if len(reader.committed) != 1 {
		t.Errorf("committed %d messages, want 1", len(reader.committed))
	}
}

func TestConsumerStopsWhileBackingOff(t *testing.T) {
	reader := &scriptedReader{failures: 1000}
	c := &Consumer{
		reader:       reader,
		handle:       func(context.Context, []byte) error { return nil },
		fetchBackoff: &stepBackoff{step: time.Hour},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return while waiting to retry a fetch")
	}
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.fetches) != 1 {
		t.Errorf("got %d fetches, want 1", len(reader.fetches))
	}
}
