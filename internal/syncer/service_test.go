package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/ruledoc"
	"github.com/rafaeljc/mimir/internal/ruleengine"
	"github.com/rafaeljc/mimir/internal/source"
	"github.com/rafaeljc/mimir/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// go-redis keeps a process-wide clock refresher once a client is created
		goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.startGlobalTimeCache.func1"),
	)
}

const (
	docV1 = "keys: [{name: title, type: string}]\nmodels: [{name: m, rules: [{key: title, value: one}]}]\n"
	docV2 = "keys: [{name: title, type: string}]\nmodels: [{name: m, rules: [{key: title, value: two}]}]\n"
)

// fakeSource serves an in-memory document and lets tests fire notifications.
type fakeSource struct {
	mu       sync.Mutex
	data     []byte
	err      error
	watchErr error
	notify   chan func()
}

func newFakeSource(data string) *fakeSource {
	return &fakeSource{data: []byte(data), notify: make(chan func(), 1)}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Load(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeSource) Watch(ctx context.Context, notify func()) error {
	if f.watchErr != nil {
		return f.watchErr
	}
	f.notify <- notify
	<-ctx.Done()
	return nil
}

func (f *fakeSource) set(data string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data, f.err = []byte(data), err
}

func newTestService(src source.Source, interval time.Duration) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, Config{Interval: interval}, src, ruledoc.Options{})
}

func titleOf(t *testing.T, s *Service) string {
	t.Helper()
	b := s.Bundle()
	require.NotNil(t, b)
	m, ok := b.Model("m")
	require.True(t, ok)
	id, err := b.Registry.Resolve("title")
	require.NoError(t, err)
	return ruleengine.NewContext(m).Value(id).(string)
}

func TestService_Reload(t *testing.T) {
	t.Parallel()

	t.Run("Should apply, then skip an unchanged document", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(newFakeSource(docV1), 0)

		status, err := svc.Reload(t.Context())
		require.NoError(t, err)
		assert.Equal(t, StatusApplied, status)
		first := svc.Bundle()

		status, err = svc.Reload(t.Context())
		require.NoError(t, err)
		assert.Equal(t, StatusUnchanged, status)
		assert.Same(t, first, svc.Bundle())
	})

	t.Run("Should keep the previous bundle when a reload fails", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(docV1)
		svc := newTestService(src, 0)
		_, err := svc.Reload(t.Context())
		require.NoError(t, err)

		src.set("models: [", nil)
		status, err := svc.Reload(t.Context())

		require.Error(t, err)
		assert.Equal(t, StatusFailed, status)
		assert.Equal(t, "one", titleOf(t, svc))
	})

	t.Run("Should fail when the source fails", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource("")
		src.set("", source.ErrNotFound)
		svc := newTestService(src, 0)

		_, err := svc.Reload(t.Context())

		assert.ErrorIs(t, err, source.ErrNotFound)
		assert.Nil(t, svc.Bundle())
		assert.ErrorIs(t, svc.Check(t.Context()), ErrNoBundle)
	})
}

func TestService_ReloadMetrics(t *testing.T) {
	// Not parallel: asserts on global counters.
	svc := newTestService(newFakeSource(docV1), 0)

	testsupport.AssertMetricDelta(t, "mimir_syncer_reloads_total", map[string]string{"status": StatusApplied}, 1, func() {
		_, err := svc.Reload(t.Context())
		require.NoError(t, err)
	})
	testsupport.AssertMetricDelta(t, "mimir_syncer_reloads_total", map[string]string{"status": StatusUnchanged}, 1, func() {
		_, err := svc.Reload(t.Context())
		require.NoError(t, err)
	})
	assert.Equal(t, 1.0, testsupport.GetMetricValue(t, "mimir_syncer_bundle_rules", nil))
}

func TestService_Run(t *testing.T) {
	t.Parallel()

	t.Run("Should load on start and reload on notification", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := newFakeSource(docV1)
		svc := newTestService(src, 0)
		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		notify := <-src.notify
		require.Eventually(t, func() bool { return svc.Check(ctx) == nil }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, "one", titleOf(t, svc))

		// Act
		src.set(docV2, nil)
		notify()

		// Assert
		assert.Eventually(t, func() bool { return titleOf(t, svc) == "two" }, 2*time.Second, 5*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("Should poll when the watcher fails", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(docV1)
		src.watchErr = errors.New("inotify exhausted")
		svc := newTestService(src, 20*time.Millisecond)
		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		require.Eventually(t, func() bool { return svc.Bundle() != nil }, 2*time.Second, 5*time.Millisecond)
		src.set(docV2, nil)
		assert.Eventually(t, func() bool { return titleOf(t, svc) == "two" }, 2*time.Second, 5*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)
	})
}

func TestService_Notify_Coalesces(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeSource(docV1), 0)
	svc.Notify()
	svc.Notify()
	svc.Notify()

	assert.Len(t, svc.trigger, 1)
}

func TestNew_PanicsWithoutSource(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, "syncer: source cannot be nil", func() {
		New(nil, Config{}, nil, ruledoc.Options{})
	})
}

func TestService_Name(t *testing.T) {
	t.Parallel()

	var c observability.Checker = newTestService(newFakeSource(docV1), 0)
	assert.Equal(t, "bundle", c.Name())
}
