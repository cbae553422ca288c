// Package store persists records. A run writes through exactly one Sink;
// sinks are safe for concurrent Write calls from the batch workers.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"playgraph/internal/logging"
	"playgraph/internal/record"
)

// Format names an output backend.
type Format string

const (
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
	FormatBadger Format = "badger"
)

// ErrOutputExists is returned when the output already exists and Force is off.
var ErrOutputExists = errors.New("output already exists")

// Config selects and locates the output.
type Config struct {
	Format Format
	Path   string
	// Driver is the database/sql driver for FormatSQLite: "sqlite" (pure Go,
	// default) or "sqlite3" (cgo).
	Driver string
	// Force overwrites an existing JSON file or Badger directory. SQLite
	// outputs are appended to under a new run id.
	Force bool
}

// Sink receives the records of a run. Records of one game arrive in one
// Write call, in step order.
type Sink interface {
	Write(ctx context.Context, records []record.Record) error
	Close() error
}

// Open creates the sink described by cfg.
func Open(cfg Config, runID string) (Sink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	logging.Store("opening %s output at %s (run %s)", cfg.Format, cfg.Path, runID)

	switch cfg.Format {
	case FormatJSON, "":
		return NewJSONSink(cfg.Path, cfg.Force)
	case FormatSQLite:
		return NewSQLiteSink(cfg.Path, cfg.Driver, runID)
	case FormatBadger:
		return NewBadgerSink(cfg.Path, cfg.Force)
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}
}

// checkOutput refuses to clobber an existing path unless force is set.
func checkOutput(path string, force bool) error {
	_, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat output %s: %w", path, err)
	case !force:
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrOutputExists, path)
	default:
		logging.Get(logging.CategoryStore).Warn("overwriting existing output %s", path)
		return os.RemoveAll(path)
	}
}
