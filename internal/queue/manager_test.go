package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

func newTestManager(t *testing.T, concurrency int, onResult func(Result)) *Manager {
	t.Helper()
	m := NewManager(Config{
		Concurrency:    concurrency,
		MessageTimeout: 2 * time.Second,
		RetryDelay:     10 * time.Millisecond,
	}, onResult, zerolog.Nop())
	t.Cleanup(m.Stop)
	return m
}

func drain(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Drain(ctx))
}

func TestManagerDeliversToHandler(t *testing.T) {
	var delivered atomic.Int64
	var results []Result
	var mu sync.Mutex

	m := newTestManager(t, 2, func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})
	m.Register(KindRawFetch, func(_ context.Context, msg *Message) error {
		delivered.Add(1)
		return nil
	})
	m.Start()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Enqueue(&Message{
			ID: "m", Kind: KindRawFetch, Symbol: "PTT", MaxAttempts: 3,
		}))
	}
	drain(t, m)

	assert.Equal(t, int64(10), delivered.Load())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 10)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestManagerRedeliversRetryableFailure(t *testing.T) {
	var attempts atomic.Int64
	var result Result
	done := make(chan struct{})

	m := newTestManager(t, 1, func(r Result) {
		result = r
		close(done)
	})
	m.Register(KindRawFetch, func(_ context.Context, msg *Message) error {
		if attempts.Add(1) < 3 {
			return domain.NewFetchError(domain.FetchTimeout, msg.Symbol, errors.New("deadline"))
		}
		return nil
	})
	m.Start()

	require.NoError(t, m.Enqueue(&Message{Kind: KindRawFetch, Symbol: "PTT", MaxAttempts: 5}))
	<-done

	assert.Equal(t, int64(3), attempts.Load(), "two retryable failures then success")
	assert.NoError(t, result.Err)
	assert.Equal(t, 3, result.Message.Attempts)
}

func TestManagerDoesNotRetryPermanentFailure(t *testing.T) {
	var attempts atomic.Int64
	var result Result
	done := make(chan struct{})

	m := newTestManager(t, 1, func(r Result) {
		result = r
		close(done)
	})
	m.Register(KindRawFetch, func(_ context.Context, msg *Message) error {
		attempts.Add(1)
		return domain.NewFetchError(domain.FetchEmpty, msg.Symbol, errors.New("no bars"))
	})
	m.Start()

	require.NoError(t, m.Enqueue(&Message{Kind: KindRawFetch, Symbol: "PTT", MaxAttempts: 5}))
	<-done

	assert.Equal(t, int64(1), attempts.Load(), "data-quality failures are not redelivered")
	require.Error(t, result.Err)
	var fe *domain.FetchError
	require.True(t, errors.As(result.Err, &fe))
	assert.Equal(t, domain.FetchEmpty, fe.Kind)
}

func TestManagerExhaustsRetries(t *testing.T) {
	var attempts atomic.Int64
	var result Result
	done := make(chan struct{})

	m := newTestManager(t, 1, func(r Result) {
		result = r
		close(done)
	})
	m.Register(KindDerivedCompute, func(_ context.Context, _ *Message) error {
		attempts.Add(1)
		return domain.ErrRawNotReady
	})
	m.Start()

	require.NoError(t, m.Enqueue(&Message{Kind: KindDerivedCompute, Symbol: "PTT", MaxAttempts: 3}))
	<-done

	assert.Equal(t, int64(3), attempts.Load())
	assert.ErrorIs(t, result.Err, domain.ErrRawNotReady)
}

func TestManagerConcurrencyCap(t *testing.T) {
	var current, peak atomic.Int64

	m := newTestManager(t, 3, nil)
	m.Register(KindRawFetch, func(_ context.Context, _ *Message) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return nil
	})
	m.Start()

	for i := 0; i < 12; i++ {
		require.NoError(t, m.Enqueue(&Message{Kind: KindRawFetch, Symbol: "PTT", MaxAttempts: 1}))
	}
	drain(t, m)

	assert.LessOrEqual(t, peak.Load(), int64(3), "never more handlers in flight than workers")
}

func TestManagerRecoversHandlerPanic(t *testing.T) {
	var result Result
	done := make(chan struct{})

	m := newTestManager(t, 1, func(r Result) {
		result = r
		close(done)
	})
	m.Register(KindRawFetch, func(_ context.Context, _ *Message) error {
		panic("bad symbol data")
	})
	m.Start()

	require.NoError(t, m.Enqueue(&Message{Kind: KindRawFetch, Symbol: "PTT", MaxAttempts: 1}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panicking handler never finalized")
	}
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "panic")
}

func TestManagerUnregisteredKind(t *testing.T) {
	var result Result
	done := make(chan struct{})

	m := newTestManager(t, 1, func(r Result) {
		result = r
		close(done)
	})
	m.Start()

	require.NoError(t, m.Enqueue(&Message{Kind: Kind("unknown"), Symbol: "PTT", MaxAttempts: 1}))
	<-done

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "no handler registered")
}

func TestManagerHandlerTimeout(t *testing.T) {
	var result Result
	done := make(chan struct{})

	m := NewManager(Config{
		Concurrency:    1,
		MessageTimeout: 100 * time.Millisecond,
		RetryDelay:     10 * time.Millisecond,
	}, func(r Result) {
		result = r
		close(done)
	}, zerolog.Nop())
	t.Cleanup(m.Stop)

	m.Register(KindRawFetch, func(ctx context.Context, _ *Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.Start()

	require.NoError(t, m.Enqueue(&Message{Kind: KindRawFetch, Symbol: "PTT", MaxAttempts: 1}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed-out handler never finalized")
	}
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
}

func TestGetKindDescription(t *testing.T) {
	assert.Equal(t, "Fetching raw price history", GetKindDescription(KindRawFetch))
	assert.Equal(t, "Computing derived features", GetKindDescription(KindDerivedCompute))
	assert.Equal(t, "Rendering PDF report", GetKindDescription(KindReportRender))
	assert.Equal(t, "mystery", GetKindDescription(Kind("mystery")))
}
