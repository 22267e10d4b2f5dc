package governor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/metrics"
)

// countingBackend records the peak number of overlapping Chat calls.
type countingBackend struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	hold     time.Duration
	chatFn   func(ctx context.Context) (string, error)
}

func (b *countingBackend) Chat(ctx context.Context, _ string, _ []engine.Message, _ *engine.Schema) (string, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	b.calls.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if b.chatFn != nil {
		return b.chatFn(ctx)
	}
	time.Sleep(b.hold)
	return "ok", nil
}

func TestGovernor_NeverExceedsMaxConcurrent(t *testing.T) {
	for _, limit := range []int{1, 2, 3} {
		backend := &countingBackend{hold: 5 * time.Millisecond}
		g := New(backend, Config{MaxConcurrent: limit, Delay: time.Millisecond, Timeout: time.Second}, nil)

		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := g.Chat(context.Background(), "m", nil, nil); err != nil {
					t.Errorf("Chat: %v", err)
				}
			}()
		}
		wg.Wait()

		if got := backend.peak.Load(); got > int32(limit) {
			t.Errorf("limit=%d: peak in-flight = %d", limit, got)
		}
		if got := backend.calls.Load(); got != 12 {
			t.Errorf("limit=%d: calls = %d, want 12", limit, got)
		}
	}
}

func TestGovernor_PacesAfterEachCall(t *testing.T) {
	backend := &countingBackend{}
	delay := 30 * time.Millisecond
	g := New(backend, Config{MaxConcurrent: 1, Delay: delay}, nil)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Chat(context.Background(), "m", nil, nil)
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 3*delay {
		t.Errorf("3 paced calls took %s, want at least %s", elapsed, 3*delay)
	}
}

func TestGovernor_TimeoutIsError(t *testing.T) {
	backend := &countingBackend{
		chatFn: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	m := metrics.New()
	g := New(backend, Config{MaxConcurrent: 1, Timeout: 20 * time.Millisecond}, m)

	_, err := g.Chat(context.Background(), "m", nil, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestGovernor_FailureDoesNotAffectSiblings(t *testing.T) {
	var n atomic.Int32
	backend := &countingBackend{
		chatFn: func(ctx context.Context) (string, error) {
			if n.Add(1) == 1 {
				return "", errors.New("boom")
			}
			return "fine", nil
		},
	}
	g := New(backend, Config{MaxConcurrent: 2}, nil)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, err := g.Chat(context.Background(), "m", nil, nil); err == nil && out == "fine" {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 3 {
		t.Errorf("successful siblings = %d, want 3", ok.Load())
	}
}

func TestGovernor_CancelledWhileWaiting(t *testing.T) {
	g := New(nil, Config{MaxConcurrent: 1}, nil)
	release := make(chan struct{})
	go g.Do(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Do(ctx, func(context.Context) error { return nil })
	close(release)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
