// Package metrics exposes Prometheus instruments for collection runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GamesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playgraph_games_total",
		Help: "Games processed, by outcome",
	}, []string{"status"})

	RecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playgraph_records_total",
		Help: "Records written to the output sink",
	})

	ClosurePasses = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playgraph_closure_passes",
		Help:    "Fixpoint passes per closure",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	ClosureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playgraph_closure_duration_seconds",
		Help:    "Duration of closure computation",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playgraph_graph_commands_total",
		Help: "Graph commands emitted, by operation",
	}, []string{"op"})

	GameDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playgraph_game_duration_seconds",
		Help:    "Wall time spent per game",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"status"})
)

// Game status labels.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ObserveClosure records one closure run.
func ObserveClosure(passes int, d time.Duration) {
	ClosurePasses.Observe(float64(passes))
	ClosureDuration.Observe(d.Seconds())
}

// ObserveGame records one finished game.
func ObserveGame(status string, d time.Duration) {
	GamesTotal.WithLabelValues(status).Inc()
	GameDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server exposes /metrics until Shutdown.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and starts serving in the background.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
