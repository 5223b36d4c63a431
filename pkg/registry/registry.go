// Package registry tracks live document sessions, evicts idle ones, and
// keeps each session backed by durable storage through a per-document
// persistence worker.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/copad/internal/logger"
	"github.com/marmos91/copad/pkg/document"
	"github.com/marmos91/copad/pkg/metrics"
	"github.com/marmos91/copad/pkg/store"
)

// idAlphabet and idLength define the shape of generated document IDs.
const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	idLength   = 6

	// maxIDAttempts bounds how many times CreateDocument retries on a
	// collision before giving up.
	maxIDAttempts = 10
)

// ErrIDExhausted is returned when a fresh document ID could not be found
// after maxIDAttempts tries.
var ErrIDExhausted = errors.New("could not allocate an unused document id")

// Config controls session lifetime and persistence cadence.
type Config struct {
	// Expiry is how long a document may go without being accessed before
	// the cleaner evicts it from memory.
	Expiry time.Duration

	// CleanupInterval is how often the cleaner scans for expired sessions.
	CleanupInterval time.Duration

	// PersistInterval is the base delay between persistence checks for each
	// live document. A random jitter of up to one second is added to each
	// tick to spread database writes out.
	PersistInterval time.Duration
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Expiry <= 0 {
		c.Expiry = 24 * time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.PersistInterval <= 0 {
		c.PersistInterval = 3 * time.Second
	}
}

// entry pairs a live session with its last access time (unix nanoseconds).
type entry struct {
	doc          *document.Document
	lastAccessed atomic.Int64
}

func (e *entry) touch() {
	e.lastAccessed.Store(time.Now().UnixNano())
}

// Registry is the set of currently loaded document sessions.
//
// Documents are materialized on first access, rehydrated from the store when
// a snapshot exists, and evicted again after sitting idle past the
// configured expiry. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	store   store.Store // nil when persistence is disabled
	metrics metrics.CollabMetrics
	config  Config

	startTime time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a registry. The store may be nil, in which case documents
// live only in memory and vanish on eviction or restart.
func New(st store.Store, m metrics.CollabMetrics, config Config) *Registry {
	config.ApplyDefaults()
	return &Registry{
		entries:   make(map[string]*entry),
		store:     st,
		metrics:   m,
		config:    config,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// StartTime returns when the registry was created, for the stats endpoint.
func (r *Registry) StartTime() time.Time {
	return r.startTime
}

// Count returns the number of sessions currently loaded in memory.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Lookup returns the live session for id without materializing one.
func (r *Registry) Lookup(id string) (*document.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.touch()
	return e.doc, true
}

// Acquire returns the live session for id, materializing it first if
// needed. When a persisted snapshot exists the new session is hydrated from
// it; otherwise it starts empty. Each materialized session gets its own
// persistence worker until it is evicted.
func (r *Registry) Acquire(ctx context.Context, id string) (*document.Document, error) {
	if doc, ok := r.Lookup(id); ok {
		return doc, nil
	}

	// Load outside the write lock; a racing Acquire may win, in which case
	// the loaded snapshot is discarded below.
	var doc *document.Document
	if r.store != nil {
		persisted, err := r.store.Load(ctx, id)
		switch {
		case err == nil:
			doc = document.NewFromSnapshot(persisted.Text, persisted.Language, r.metrics)
		case errors.Is(err, store.ErrNotFound):
			doc = document.New(r.metrics)
		default:
			r.metrics.RecordStorageError("load")
			return nil, fmt.Errorf("load document %s: %w", id, err)
		}
	} else {
		doc = document.New(r.metrics)
	}

	return r.materialize(id, doc), nil
}

// materialize inserts a freshly built session into the registry and spawns
// its persistence worker. A racing insert for the same id wins and the built
// session is discarded.
func (r *Registry) materialize(id string, doc *document.Document) *document.Document {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		r.mu.Unlock()
		e.touch()
		return e.doc
	}
	e := &entry{doc: doc}
	e.touch()
	r.entries[id] = e
	open := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetOpenDocuments(open)
	logger.Info("document session opened", logger.KeyDocumentID, id)

	if r.store != nil {
		r.wg.Add(1)
		go r.persistLoop(id, doc)
	}
	return doc
}

// Text returns the current text of a document. A loaded session answers
// from memory; otherwise the store is consulted directly without
// materializing a session. Unknown documents read as empty.
func (r *Registry) Text(ctx context.Context, id string) (string, error) {
	if doc, ok := r.Lookup(id); ok {
		return doc.Text(), nil
	}
	if r.store == nil {
		return "", nil
	}
	persisted, err := r.store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		r.metrics.RecordStorageError("load")
		return "", fmt.Errorf("load document %s: %w", id, err)
	}
	return persisted.Text, nil
}

// CreateDocument allocates an unused document ID and materializes a session
// for it, optionally seeded with initial text and a language. Seeded text
// arrives at clients as regular history from revision zero.
func (r *Registry) CreateDocument(ctx context.Context, language *string, text string) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := newDocumentID()
		if err != nil {
			return "", err
		}
		taken, err := r.idTaken(ctx, id)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		r.materialize(id, document.NewFromSnapshot(text, language, r.metrics))
		return id, nil
	}
	return "", ErrIDExhausted
}

// idTaken reports whether id is in use, either live or persisted.
func (r *Registry) idTaken(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	_, live := r.entries[id]
	r.mu.RUnlock()
	if live {
		return true, nil
	}
	if r.store == nil {
		return false, nil
	}
	exists, err := r.store.Exists(ctx, id)
	if err != nil {
		r.metrics.RecordStorageError("exists")
		return false, fmt.Errorf("check document %s: %w", id, err)
	}
	return exists, nil
}

// newDocumentID returns a random ID drawn uniformly from idAlphabet. Bytes
// above the largest multiple of the alphabet size are rejected so no
// character is favored.
func newDocumentID() (string, error) {
	const limit = 256 - 256%len(idAlphabet)
	id := make([]byte, 0, idLength)
	buf := make([]byte, 2*idLength)
	for len(id) < idLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate document id: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			id = append(id, idAlphabet[int(b)%len(idAlphabet)])
			if len(id) == idLength {
				break
			}
		}
	}
	return string(id), nil
}

// RunCleaner evicts idle sessions until the context is cancelled or the
// registry is closed. It is meant to run as a single background goroutine.
func (r *Registry) RunCleaner(ctx context.Context) {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

// evictExpired removes every session idle past the expiry and flags it as
// killed so its persistence worker winds down.
func (r *Registry) evictExpired() {
	cutoff := time.Now().Add(-r.config.Expiry).UnixNano()

	r.mu.Lock()
	var evicted []string
	for id, e := range r.entries {
		if e.lastAccessed.Load() < cutoff {
			e.doc.Kill()
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	open := len(r.entries)
	r.mu.Unlock()

	if len(evicted) == 0 {
		return
	}
	r.metrics.SetOpenDocuments(open)
	for _, id := range evicted {
		r.metrics.RecordDocumentEvicted()
		logger.Info("document session evicted", logger.KeyDocumentID, id)
	}
}

// Close stops all persistence workers and waits for them to finish. The
// store itself is owned by the caller and is not closed here.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}
