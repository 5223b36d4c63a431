package registry

import (
	"context"
	"math/rand"
	"time"

	"github.com/marmos91/copad/internal/logger"
	"github.com/marmos91/copad/pkg/document"
	"github.com/marmos91/copad/pkg/store"
)

// persistJitter is the maximum random delay added to each persistence tick
// so workers for many documents do not hit the database in lockstep.
const persistJitter = time.Second

// persistLoop saves a document's snapshot whenever its revision has
// advanced since the last save. It runs until the session is killed by the
// cleaner or the registry shuts down, flushing any unsaved edits before it
// exits. A failed save is retried on the next tick since the revision still
// exceeds the last persisted one.
func (r *Registry) persistLoop(id string, doc *document.Document) {
	defer r.wg.Done()

	lastRevision := 0
	for {
		lastRevision = r.persistSnapshot(id, doc, lastRevision)

		if doc.Killed() {
			logger.Debug("persistence worker stopped", logger.KeyDocumentID, id)
			return
		}

		delay := r.config.PersistInterval + time.Duration(rand.Int63n(int64(persistJitter)))
		select {
		case <-r.done:
			// Edits made since the last tick must not be lost on shutdown.
			r.persistSnapshot(id, doc, lastRevision)
			return
		case <-time.After(delay):
		}
	}
}

// persistSnapshot writes the document's snapshot if its revision advanced
// past lastRevision, returning the highest persisted revision.
func (r *Registry) persistSnapshot(id string, doc *document.Document, lastRevision int) int {
	revision := doc.Revision()
	if revision <= lastRevision {
		return lastRevision
	}

	text, language := doc.Snapshot()
	err := r.store.Save(context.Background(), &store.PersistedDocument{
		ID:       id,
		Text:     text,
		Language: language,
	})
	if err != nil {
		r.metrics.RecordStorageError("save")
		logger.Error("failed to persist document",
			logger.KeyDocumentID, id,
			logger.KeyStoreOp, "save",
			logger.KeyError, err)
		return lastRevision
	}

	logger.Debug("persisted document",
		logger.KeyDocumentID, id,
		logger.KeyRevision, revision)
	return revision
}
