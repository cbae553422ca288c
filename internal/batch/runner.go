// Package batch runs the collector over many games concurrently and hands
// each game's records to the output sink.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"playgraph/internal/logging"
	"playgraph/internal/metrics"
	"playgraph/internal/playthrough"
	"playgraph/internal/record"
	"playgraph/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Job is one game to collect. Tracker, when set, builds the game's own
// tracker; a nil Tracker uses the runner's collector as is.
type Job struct {
	Game    string
	NewEnv  func() (playthrough.Environment, error)
	Tracker func() (*playthrough.Tracker, error)
}

// Options tunes a batch run.
type Options struct {
	// Workers bounds the games collected at once.
	Workers int
	// GameTimeout bounds one game. Zero means no limit.
	GameTimeout time.Duration
	// RunID labels the output. Empty generates a UUID.
	RunID string
}

// Failure is a game that could not be collected.
type Failure struct {
	Game string `json:"game"`
	Err  string `json:"error"`
}

// Report summarizes a run.
type Report struct {
	RunID     string        `json:"run_id"`
	Games     int           `json:"games"`
	Succeeded int           `json:"succeeded"`
	Records   int           `json:"records"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Runner collects games into one sink.
type Runner struct {
	collector *playthrough.Collector
	sink      store.Sink
	opts      Options
}

// NewRunner builds a runner.
func NewRunner(collector *playthrough.Collector, sink store.Sink, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Runner{collector: collector, sink: sink, opts: opts}
}

// RunID returns the run's id.
func (r *Runner) RunID() string {
	return r.opts.RunID
}

// Run collects every job. A game whose environment or pipeline fails is
// reported in Report.Failures and does not stop the others; a sink failure
// or cancellation of ctx stops the run.
func (r *Runner) Run(ctx context.Context, jobs []Job) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: r.opts.RunID, Games: len(jobs)}
	logging.Batch("run %s: collecting %d games with %d workers", r.opts.RunID, len(jobs), r.opts.Workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			n, err := r.runGame(gctx, job)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Succeeded++
				report.Records += n
				return nil
			case errors.Is(err, errSink), gctx.Err() != nil:
				return err
			default:
				report.Failures = append(report.Failures, Failure{Game: job.Game, Err: err.Error()})
				return nil
			}
		})
	}
	err := g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Game < report.Failures[j].Game })
	report.Duration = time.Since(start)
	if err != nil {
		logging.BatchError("run %s aborted: %v", r.opts.RunID, err)
		return report, err
	}
	logging.Batch("run %s: %d/%d games, %d records in %v",
		r.opts.RunID, report.Succeeded, report.Games, report.Records, report.Duration)
	return report, nil
}

var errSink = errors.New("sink write failed")

func (r *Runner) runGame(ctx context.Context, job Job) (int, error) {
	start := time.Now()
	if r.opts.GameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.GameTimeout)
		defer cancel()
	}

	records, err := r.collect(ctx, job)
	if err != nil {
		metrics.ObserveGame(metrics.StatusFailed, time.Since(start))
		logging.BatchError("game %s failed: %v", job.Game, err)
		return 0, err
	}
	if err := r.sink.Write(ctx, records); err != nil {
		metrics.ObserveGame(metrics.StatusFailed, time.Since(start))
		return 0, fmt.Errorf("%w: game %s: %v", errSink, job.Game, err)
	}
	metrics.RecordsTotal.Add(float64(len(records)))
	metrics.ObserveGame(metrics.StatusOK, time.Since(start))
	logging.BatchDebug("game %s: %d records in %v", job.Game, len(records), time.Since(start))
	return len(records), nil
}

func (r *Runner) collect(ctx context.Context, job Job) ([]record.Record, error) {
	collector := r.collector
	if job.Tracker != nil {
		tracker, err := job.Tracker()
		if err != nil {
			return nil, fmt.Errorf("failed to load rule base: %w", err)
		}
		collector = collector.WithTracker(tracker)
	}
	env, err := job.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}
	return collector.Collect(ctx, job.Game, env)
}
