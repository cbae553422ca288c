package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"playgraph/internal/logging"
	"playgraph/internal/record"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DefaultSQLiteDriver is the pure-Go driver.
const DefaultSQLiteDriver = "sqlite"

// SQLiteSink stores records in a records table keyed by run id.
type SQLiteSink struct {
	db    *sql.DB
	path  string
	runID string
}

// NewSQLiteSink opens (or creates) the database and registers the run.
func NewSQLiteSink(path, driver, runID string) (*SQLiteSink, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteSink")
	defer timer.Stop()

	if driver == "" {
		driver = DefaultSQLiteDriver
	}
	if driver != "sqlite" && driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		logging.StoreError("failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &SQLiteSink{db: db, path: path, runID: runID}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("INSERT INTO runs (run_id) VALUES (?)", runID); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run %s: %w", runID, err)
	}
	logging.StoreDebug("sqlite output ready at %s using driver %s", path, driver)
	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			game TEXT NOT NULL,
			step_main INTEGER NOT NULL,
			step_branch INTEGER NOT NULL,
			previous_action TEXT NOT NULL,
			observation TEXT NOT NULL,
			previous_graph_seen TEXT NOT NULL,
			graph_seen TEXT NOT NULL,
			target_commands TEXT NOT NULL,
			graph_local TEXT,
			graph_full TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_run_game ON records(run_id, game, step_main, step_branch)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// RunID returns the run this sink writes under.
func (s *SQLiteSink) RunID() string {
	return s.runID
}

// Write inserts records in one transaction.
func (s *SQLiteSink) Write(ctx context.Context, records []record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records
		(run_id, game, step_main, step_branch, previous_action, observation,
		 previous_graph_seen, graph_seen, target_commands, graph_local, graph_full)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		cols, err := encodeColumns(r)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, s.runID, r.Game, r.Step.Main, r.Step.Branch,
			r.PreviousAction, r.Observation, cols[0], cols[1], cols[2], cols[3], cols[4])
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	logging.StoreDebug("inserted %d records into %s", len(records), s.path)
	return nil
}

func encodeColumns(r record.Record) ([5]any, error) {
	var cols [5]any
	for i, v := range [][]string{r.PreviousGraphSeen, r.GraphSeen, r.TargetCommands} {
		data, err := json.Marshal(v)
		if err != nil {
			return cols, err
		}
		cols[i] = string(data)
	}
	for i, v := range [][]string{r.GraphLocal, r.GraphFull} {
		if v == nil {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return cols, err
		}
		cols[3+i] = string(data)
	}
	return cols, nil
}

// Records reads back the records of one run, ordered by game and step.
func (s *SQLiteSink) Records(ctx context.Context, runID string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game, step_main, step_branch, previous_action,
		observation, previous_graph_seen, graph_seen, target_commands, graph_local, graph_full
		FROM records WHERE run_id = ? ORDER BY game, step_main, step_branch`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var (
			r                    record.Record
			prev, seen, commands string
			local, full          sql.NullString
		)
		if err := rows.Scan(&r.Game, &r.Step.Main, &r.Step.Branch, &r.PreviousAction,
			&r.Observation, &prev, &seen, &commands, &local, &full); err != nil {
			return nil, err
		}
		if err := decodeColumns(&r, prev, seen, commands, local, full); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type column struct {
	raw string
	dst *[]string
}

func decodeColumns(r *record.Record, prev, seen, commands string, local, full sql.NullString) error {
	cols := []column{
		{prev, &r.PreviousGraphSeen},
		{seen, &r.GraphSeen},
		{commands, &r.TargetCommands},
	}
	if local.Valid {
		cols = append(cols, column{local.String, &r.GraphLocal})
	}
	if full.Valid {
		cols = append(cols, column{full.String, &r.GraphFull})
	}
	for _, c := range cols {
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return fmt.Errorf("failed to decode column: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
