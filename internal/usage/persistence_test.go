package usage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func countRecords(t *testing.T, dbPath string) int {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM call_records").Scan(&n); err != nil {
		t.Fatalf("count records: %v", err)
	}
	return n
}

func TestPersisterFlushOnStop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")

	p, err := NewPersister(dbPath, 0)
	if err != nil {
		t.Fatalf("NewPersister: %v", err)
	}

	for i := 0; i < 5; i++ {
		p.Add(Record{
			RequestID:   "req",
			Model:       "anthropic.claude-3",
			AuthMode:    "signing",
			RequestedAt: time.Now(),
			Chunks:      3,
			Bytes:       42,
			DurationMS:  120,
		})
	}
	p.Stop()

	if got := countRecords(t, dbPath); got != 5 {
		t.Errorf("got %d records after Stop, want 5", got)
	}
}

func TestPersisterRecordsFailure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")

	p, err := NewPersister(dbPath, 0)
	if err != nil {
		t.Fatalf("NewPersister: %v", err)
	}
	p.Add(Record{
		RequestID:   "req-f",
		Model:       "meta.llama3-8b",
		RequestedAt: time.Now(),
		Failed:      true,
		ErrorKind:   "api_error",
	})
	p.Stop()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	var failed int
	var kind string
	if err := db.QueryRow("SELECT failed, error_kind FROM call_records WHERE request_id = 'req-f'").Scan(&failed, &kind); err != nil {
		t.Fatalf("query record: %v", err)
	}
	if failed != 1 || kind != "api_error" {
		t.Errorf("stored failed=%d kind=%q, want failure marked", failed, kind)
	}
}

func TestPersisterRetentionCleanup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")

	// Seed the schema and one stale record before starting a retention-enabled
	// persister.
	p, err := NewPersister(dbPath, 0)
	if err != nil {
		t.Fatalf("NewPersister: %v", err)
	}
	p.Stop()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	stale := time.Now().UTC().AddDate(0, 0, -10)
	if _, err := db.Exec(
		"INSERT INTO call_records (request_id, model, auth_mode, requested_at) VALUES ('old', 'm', 'bearer', ?)",
		stale); err != nil {
		t.Fatalf("insert stale record: %v", err)
	}
	_ = db.Close()

	p, err = NewPersister(dbPath, 7)
	if err != nil {
		t.Fatalf("NewPersister with retention: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for countRecords(t, dbPath) != 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	p.Stop()

	if got := countRecords(t, dbPath); got != 0 {
		t.Errorf("stale record survived retention cleanup: %d rows", got)
	}
}

func TestPersisterReopenKeepsExistingRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")

	p, err := NewPersister(dbPath, 0)
	if err != nil {
		t.Fatalf("NewPersister: %v", err)
	}
	p.Add(Record{RequestID: "first", Model: "m", RequestedAt: time.Now()})
	p.Stop()

	p, err = NewPersister(dbPath, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	p.Add(Record{RequestID: "second", Model: "m", RequestedAt: time.Now()})
	p.Stop()

	if got := countRecords(t, dbPath); got != 2 {
		t.Errorf("got %d records across restarts, want 2", got)
	}
}
