package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/config"
)

func testConfig() *config.ObservabilityConfig {
	// Non-default paths prove the server honours its configuration.
	return &config.ObservabilityConfig{
		Enabled:       true,
		Port:          "0",
		Timeout:       time.Second,
		LivenessPath:  "/alive",
		ReadinessPath: "/check-deps",
		MetricsPath:   "/telemetry",
	}
}

func okChecker(name string) Checker {
	return CheckerFunc{ComponentName: name, Fn: func(context.Context) error { return nil }}
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		checkers   []Checker
		path       string
		wantStatus int
		wantBody   map[string]string
	}{
		{
			name:       "Should answer liveness unconditionally",
			checkers:   []Checker{CheckerFunc{ComponentName: "bundle", Fn: func(context.Context) error { return errors.New("nope") }}},
			path:       "/alive",
			wantStatus: http.StatusOK,
		},
		{
			name:       "Should be ready when all checkers pass",
			checkers:   []Checker{okChecker("bundle"), okChecker("redis")},
			path:       "/check-deps",
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"bundle": "up", "redis": "up"},
		},
		{
			name: "Should not be ready when one checker fails",
			checkers: []Checker{
				okChecker("redis"),
				CheckerFunc{ComponentName: "bundle", Fn: func(context.Context) error { return errors.New("no bundle loaded") }},
			},
			path:       "/check-deps",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]string{"bundle": "down: no bundle loaded", "redis": "up"},
		},
		{
			name:       "Should be ready without checkers",
			path:       "/check-deps",
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			srv := NewServer(log, testConfig(), tt.checkers...)
			rec := httptest.NewRecorder()

			// Act
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			// Assert
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != nil {
				var body struct {
					Status map[string]string `json:"status"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantBody, body.Status)
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), testConfig())
	ResolutionsTotal.WithLabelValues("rule").Inc()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telemetry", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mimir_engine_resolutions_total")
	assert.Equal(t, "no-cache, no-store, no-transform, must-revalidate, private, max-age=0", rec.Header().Get("Cache-Control"))
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewServer(nil, testConfig()) })
	assert.Panics(t, func() { NewServer(slog.Default(), nil) })
}
