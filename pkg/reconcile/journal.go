package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Journal appends divergence records to a file as a stream of msgpack
// values. Appending keeps the file valid after a crash: a truncated
// trailing record is detected and skipped on read.
type Journal struct {
	mu     sync.Mutex
	f      *os.File
	enc    *msgpack.Encoder
	logger *slog.Logger
}

// OpenJournal opens or creates the journal file in append mode.
func OpenJournal(path string, logger *slog.Logger) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	return &Journal{
		f:      f,
		enc:    msgpack.NewEncoder(f),
		logger: logger,
	}, nil
}

// Record appends a divergence. Encoding errors are logged, never
// returned: journaling must not fail the write path it compensates.
func (j *Journal) Record(ctx context.Context, d Divergence) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.enc.Encode(&d); err != nil {
		j.logger.ErrorContext(ctx, "failed to journal divergence",
			"table", d.Table,
			"entity_id", d.EntityID,
			"error", err,
		)
		return
	}
	if err := j.f.Sync(); err != nil {
		j.logger.ErrorContext(ctx, "failed to sync journal", "error", err)
	}
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// ReadJournal decodes all records from a journal file. A partially
// written trailing record terminates the read without error.
func ReadJournal(path string) ([]Divergence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	defer f.Close()

	dec := msgpack.NewDecoder(f)
	var records []Divergence
	for {
		var d Divergence
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("decoding journal record %d: %w", len(records), err)
		}
		records = append(records, d)
	}
	return records, nil
}
