package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"
)

type readinessResponse struct {
	Status map[string]string `json:"status"`
}

// liveness answers 200 while the process can serve HTTP at all.
func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness answers 200 only if every checker passes within the probe timeout.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	// one slot per checker, so the goroutines never share state
	results := make([]error, len(s.checkers))
	var g errgroup.Group
	for i, checker := range s.checkers {
		g.Go(func() error {
			results[i] = checker.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: make(map[string]string, len(s.checkers))}
	ready := true
	for i, checker := range s.checkers {
		if err := results[i]; err != nil {
			// Warn, the orchestrator retries probes on its own
			s.logger.Warn("readiness check failed",
				slog.String("component", checker.Name()),
				slog.String("error", err.Error()),
			)
			resp.Status[checker.Name()] = "down: " + err.Error()
			ready = false
			continue
		}
		resp.Status[checker.Name()] = "up"
	}

	if ready {
		render.Status(r, http.StatusOK)
	} else {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
