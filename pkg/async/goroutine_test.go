package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// syncBuffer lets the test read log output while goroutines write to it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*observability.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return observability.NewLogger(observability.DebugLevel, buf), buf
}

func TestSafeGo_Success(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), nil, time.Second, "test task", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SafeGo did not execute function")
	}
}

func TestSafeGo_WithErrorIsLogged(t *testing.T) {
	logger, buf := testLogger()

	SafeGo(context.Background(), logger, time.Second, "refetch", func(ctx context.Context) error {
		return errors.New("upstream unavailable")
	})

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "upstream unavailable")
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), `"task":"refetch"`)
}

func TestSafeGo_Timeout(t *testing.T) {
	result := make(chan error, 1)

	SafeGo(context.Background(), nil, 20*time.Millisecond, "test task", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			result <- nil
		case <-ctx.Done():
			result <- ctx.Err()
		}
		return nil
	})

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task did not finish")
	}
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	logger, buf := testLogger()

	SafeGo(context.Background(), logger, time.Second, "exploding task", func(ctx context.Context) error {
		panic("test panic")
	})

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "PANIC recovered")
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), "exploding task")
}

func TestSafeGo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)

	SafeGo(ctx, nil, 0, "test task", func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return nil
	})

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("task ignored cancellation")
	}
}

func TestEvery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ticks atomic.Int32

	Every(ctx, nil, 5*time.Millisecond, "ticker", func(ctx context.Context) {
		if ticks.Add(1) == 1 {
			panic("first tick explodes")
		}
	})

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond,
		"loop keeps running after a panicking tick")
}
