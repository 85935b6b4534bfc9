// Package watcher hot-reloads the credential settings file. The settings
// layer owns credential mutation; the gateway only ever reads snapshots, so
// a reload racing an in-flight call is safe by construction.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bedrock-gateway/internal/credentials"
	log "bedrock-gateway/internal/logging"
)

const debounceDelay = 200 * time.Millisecond

// Watcher monitors the credentials file and replaces the store's active
// credential when the file content actually changes.
type Watcher struct {
	path  string
	store *credentials.Store

	mu        sync.Mutex
	lastHash  string
	debouncer *time.Timer
	fsw       *fsnotify.Watcher
}

// New creates a watcher for the credentials file at path.
func New(path string, store *credentials.Store) *Watcher {
	return &Watcher{path: path, store: store}
}

// LoadInitial performs the first load. A missing file is not an error; the
// store simply stays empty until one appears.
func (w *Watcher) LoadInitial() {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		log.Infof("watcher: credentials file %s not present yet", w.path)
		return
	}
	w.reload()
}

// Run watches until ctx is cancelled. The parent directory is watched so
// atomic replace-by-rename (the common editor and provisioning pattern) is
// still observed.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer func() {
		_ = fsw.Close()
	}()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}
	log.Infof("watcher: watching %s", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watcher: fs event error")
		}
	}
}

// scheduleReload debounces bursts of events into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	w.debouncer = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("watcher: credentials file removed, clearing credential")
			w.setHash("")
			w.store.Clear()
			return
		}
		log.WithError(err).Warn("watcher: read credentials file")
		return
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	if !w.setHash(hash) {
		return
	}

	cred, err := credentials.LoadFile(w.path)
	if err != nil {
		// Keep the previous credential; a half-written or invalid file must
		// not take down in-flight or future calls.
		log.WithError(err).Warn("watcher: credentials file invalid, keeping previous credential")
		return
	}

	w.store.Replace(cred)
	log.WithField("mode", cred.Mode).Info("watcher: credential replaced")
}

// setHash records the hash and reports whether it changed.
func (w *Watcher) setHash(hash string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if hash == w.lastHash {
		return false
	}
	w.lastHash = hash
	return true
}
