// Package usage persists per-call gateway statistics to SQLite with async
// batched writes, so recording never blocks a streaming call.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	log "bedrock-gateway/internal/logging"
)

// Record is one completed (or failed) gateway call.
type Record struct {
	RequestID   string
	Model       string
	AuthMode    string
	RequestedAt time.Time
	Failed      bool
	ErrorKind   string
	Chunks      int64
	Bytes       int64
	DurationMS  int64
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	channelBufferSize    = 1000
)

const schema = `
CREATE TABLE IF NOT EXISTS call_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	model TEXT NOT NULL,
	auth_mode TEXT NOT NULL,
	requested_at TIMESTAMP NOT NULL,
	failed INTEGER NOT NULL DEFAULT 0,
	error_kind TEXT NOT NULL DEFAULT '',
	chunks INTEGER NOT NULL DEFAULT 0,
	bytes INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_call_records_requested_at ON call_records(requested_at);
CREATE INDEX IF NOT EXISTS idx_call_records_model ON call_records(model);
`

// Persister buffers records on a channel and flushes them in batches.
type Persister struct {
	db            *sql.DB
	records       chan Record
	stop          chan struct{}
	done          chan struct{}
	batchSize     int
	flushInterval time.Duration
	retentionDays int
}

// NewPersister opens (or creates) the SQLite database at dbPath and starts
// the background flush loop.
func NewPersister(dbPath string, retentionDays int) (*Persister, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("usage: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("usage: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("usage: apply schema: %w", err)
	}

	p := &Persister{
		db:            db,
		records:       make(chan Record, channelBufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		retentionDays: retentionDays,
	}
	go p.loop()
	return p, nil
}

// Add enqueues a record. Drops the record rather than blocking when the
// buffer is full.
func (p *Persister) Add(rec Record) {
	select {
	case p.records <- rec:
	default:
		log.Warn("usage: record buffer full, dropping record")
	}
}

func (p *Persister) loop() {
	defer close(p.done)

	flushTicker := time.NewTicker(p.flushInterval)
	defer flushTicker.Stop()
	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	batch := make([]Record, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.writeBatch(batch); err != nil {
			log.WithError(err).Error("usage: batch write failed")
		}
		batch = batch[:0]
	}

	p.cleanup()

	for {
		select {
		case rec := <-p.records:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-flushTicker.C:
			flush()
		case <-cleanupTicker.C:
			p.cleanup()
		case <-p.stop:
			for {
				select {
				case rec := <-p.records:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (p *Persister) writeBatch(batch []Record) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO call_records (request_id, model, auth_mode, requested_at, failed, error_kind, chunks, bytes, duration_ms) VALUES ")
	args := make([]any, 0, len(batch)*9)
	for i, rec := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?,?,?,?,?,?)")
		failed := 0
		if rec.Failed {
			failed = 1
		}
		args = append(args, rec.RequestID, rec.Model, rec.AuthMode, rec.RequestedAt.UTC(),
			failed, rec.ErrorKind, rec.Chunks, rec.Bytes, rec.DurationMS)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := p.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (p *Persister) cleanup() {
	if p.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -p.retentionDays)
	res, err := p.db.Exec("DELETE FROM call_records WHERE requested_at < ?", cutoff)
	if err != nil {
		log.WithError(err).Error("usage: retention cleanup failed")
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Infof("usage: removed %d records older than %d days", n, p.retentionDays)
	}
}

// Stop flushes pending records and closes the database.
func (p *Persister) Stop() {
	close(p.stop)
	<-p.done
	if err := p.db.Close(); err != nil {
		log.WithError(err).Error("usage: close database")
	}
}
