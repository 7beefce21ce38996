package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agencykit/core"
)

type fakeHandle struct {
	id     int32
	closed atomic.Bool
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func TestManager_AcquireInitializesOnce(t *testing.T) {
	m := NewManager()

	var calls atomic.Int32
	require.NoError(t, m.Register("browser", func(_ context.Context) (core.Handle, error) {
		calls.Add(1)
		return &fakeHandle{id: calls.Load()}, nil
	}))

	const n = 16
	handles := make([]core.Handle, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire(context.Background(), "browser")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, handles[0], handles[i])
	}
}

func TestManager_UnknownKind(t *testing.T) {
	m := NewManager()

	_, err := m.Acquire(context.Background(), "nope")

	var initErr *core.ResourceInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "nope", initErr.Kind)
}

func TestManager_RegisterValidation(t *testing.T) {
	m := NewManager()

	factory := func(_ context.Context) (core.Handle, error) { return &fakeHandle{}, nil }

	require.NoError(t, m.Register("browser", factory))

	var cfgErr *core.ConfigError
	assert.ErrorAs(t, m.Register("browser", factory), &cfgErr)
	assert.ErrorAs(t, m.Register("", factory), &cfgErr)
	assert.ErrorAs(t, m.Register("imagegen", nil), &cfgErr)
}

func TestManager_FailedInitCachedInsideWindow(t *testing.T) {
	m := NewManager(func(o *ManagerOptions) {
		o.RetryInterval = 60 // long enough that the window never elapses here
	})

	var calls atomic.Int32
	bootErr := errors.New("driver not reachable")
	require.NoError(t, m.Register("browser", func(_ context.Context) (core.Handle, error) {
		calls.Add(1)
		return nil, bootErr
	}))

	_, err1 := m.Acquire(context.Background(), "browser")
	_, err2 := m.Acquire(context.Background(), "browser")

	var initErr *core.ResourceInitError
	require.ErrorAs(t, err1, &initErr)
	assert.Equal(t, "browser", initErr.Kind)
	assert.ErrorIs(t, err1, bootErr)

	// Second caller gets the cached error without a new factory attempt.
	assert.Equal(t, err1, err2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_FailedInitRetriesAfterWindow(t *testing.T) {
	m := NewManager(func(o *ManagerOptions) {
		o.RetryInterval = 0.01 // 10ms
	})

	var calls atomic.Int32
	require.NoError(t, m.Register("browser", func(_ context.Context) (core.Handle, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("cold start")
		}
		return &fakeHandle{}, nil
	}))

	_, err := m.Acquire(context.Background(), "browser")
	require.Error(t, err)

	time.Sleep(30 * time.Millisecond)

	h, err := m.Acquire(context.Background(), "browser")
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, int32(2), calls.Load())
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	m := NewManager()

	h := &fakeHandle{}
	require.NoError(t, m.Register("browser", func(_ context.Context) (core.Handle, error) {
		return h, nil
	}))

	// Release before any acquire is a no-op.
	assert.NoError(t, m.Release("browser"))
	assert.NoError(t, m.Release("unknown"))

	_, err := m.Acquire(context.Background(), "browser")
	require.NoError(t, err)

	assert.NoError(t, m.Release("browser"))
	assert.True(t, h.closed.Load())
	assert.NoError(t, m.Release("browser"))
}

func TestManager_ReleaseAll(t *testing.T) {
	m := NewManager()

	browser := &fakeHandle{}
	imagegen := &fakeHandle{}
	require.NoError(t, m.Register("browser", func(_ context.Context) (core.Handle, error) { return browser, nil }))
	require.NoError(t, m.Register("imagegen", func(_ context.Context) (core.Handle, error) { return imagegen, nil }))
	require.NoError(t, m.Register("untouched", func(_ context.Context) (core.Handle, error) { return &fakeHandle{}, nil }))

	_, err := m.Acquire(context.Background(), "browser")
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), "imagegen")
	require.NoError(t, err)

	require.NoError(t, m.ReleaseAll())
	assert.True(t, browser.closed.Load())
	assert.True(t, imagegen.closed.Load())

	assert.Equal(t, []string{"browser", "imagegen", "untouched"}, m.Kinds())
}
