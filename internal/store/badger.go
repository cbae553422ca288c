package store

import (
	"context"
	"encoding/json"
	"fmt"

	"playgraph/internal/logging"
	"playgraph/internal/record"

	"github.com/dgraph-io/badger/v4"
)

// BadgerSink stores each record under its key, record/<game>/<main>/<branch>.
type BadgerSink struct {
	db   *badger.DB
	path string
}

// NewBadgerSink opens a Badger directory. An empty path runs in memory.
func NewBadgerSink(path string, force bool) (*BadgerSink, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else if err := checkOutput(path, force); err != nil {
		return nil, err
	}
	opts = opts.WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerSink{db: db, path: path}, nil
}

// Write stores records in one transaction batch.
func (s *BadgerSink) Write(ctx context.Context, records []record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.Key(), err)
		}
		if err := wb.Set([]byte(r.Key()), data); err != nil {
			return fmt.Errorf("failed to stage record %s: %w", r.Key(), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	logging.StoreDebug("stored %d records in badger %s", len(records), s.path)
	return nil
}

// Records returns the records of one game in step order, or of every game
// when game is empty.
func (s *BadgerSink) Records(game string) ([]record.Record, error) {
	prefix := []byte("record/")
	if game != "" {
		prefix = []byte("record/" + game + "/")
	}
	var out []record.Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r record.Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// Close closes the database.
func (s *BadgerSink) Close() error {
	return s.db.Close()
}
