package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bedrock-gateway/internal/credentials"
)

func credFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "credentials.hujson")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write credentials file: %v", err)
	}
	return path
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestLoadInitial(t *testing.T) {
	dir := t.TempDir()
	path := credFile(t, dir, `{"mode": "bearer", "api_key": "tok"}`)

	store := credentials.NewStore()
	New(path, store).LoadInitial()

	cred, ok := store.Active()
	if !ok || cred.APIKey != "tok" {
		t.Errorf("Active() = %+v, %v; want the loaded credential", cred, ok)
	}
}

func TestLoadInitialMissingFile(t *testing.T) {
	store := credentials.NewStore()
	New(filepath.Join(t.TempDir(), "absent.hujson"), store).LoadInitial()

	if _, ok := store.Active(); ok {
		t.Error("missing file must leave the store empty")
	}
}

func TestLoadInitialInvalidFile(t *testing.T) {
	path := credFile(t, t.TempDir(), `{"mode": "bearer"}`)

	store := credentials.NewStore()
	New(path, store).LoadInitial()

	if _, ok := store.Active(); ok {
		t.Error("invalid file must not install a credential")
	}
}

func TestRunReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := credFile(t, dir, `{"mode": "bearer", "api_key": "first"}`)

	store := credentials.NewStore()
	w := New(path, store)
	w.LoadInitial()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register before mutating the file.
	time.Sleep(100 * time.Millisecond)

	credFile(t, dir, `{"mode": "bearer", "api_key": "second"}`)
	waitFor(t, func() bool {
		cred, ok := store.Active()
		return ok && cred.APIKey == "second"
	}, "store never picked up the rewritten credential")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Run did not return after cancellation")
	}
}

func TestRunKeepsCredentialOnInvalidRewrite(t *testing.T) {
	dir := t.TempDir()
	path := credFile(t, dir, `{"mode": "bearer", "api_key": "good"}`)

	store := credentials.NewStore()
	w := New(path, store)
	w.LoadInitial()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	credFile(t, dir, `{half written`)

	// The invalid content must never evict the working credential. Wait past
	// the debounce window before asserting.
	time.Sleep(3 * debounceDelay)
	cred, ok := store.Active()
	if !ok || cred.APIKey != "good" {
		t.Errorf("Active() = %+v, %v; want the previous credential kept", cred, ok)
	}
}

func TestRunClearsOnRemoval(t *testing.T) {
	dir := t.TempDir()
	path := credFile(t, dir, `{"mode": "bearer", "api_key": "tok"}`)

	store := credentials.NewStore()
	w := New(path, store)
	w.LoadInitial()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove credentials file: %v", err)
	}
	waitFor(t, func() bool {
		_, ok := store.Active()
		return !ok
	}, "store still holds a credential after file removal")
}
