// Package store persists document snapshots across server restarts.
//
// The store holds only the latest text and language of each document, not
// the operation history. On reload a document is rehydrated from this
// snapshot as a fresh session.
package store

import "context"

// ErrNotFound is returned when a document has never been persisted.
var ErrNotFound = &NotFoundError{}

// NotFoundError indicates a document snapshot does not exist in the store.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return "document not found"
	}
	return "document not found: " + e.ID
}

// Is makes all NotFoundError values match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// PersistedDocument is the durable snapshot of a document.
type PersistedDocument struct {
	ID       string  `gorm:"primaryKey" json:"id"`
	Text     string  `json:"text"`
	Language *string `json:"language,omitempty"`
}

// TableName overrides the GORM table name.
func (PersistedDocument) TableName() string {
	return "document"
}

// Store is the persistence interface used by the document registry.
type Store interface {
	// Load retrieves a document snapshot. Returns ErrNotFound if the
	// document has never been saved.
	Load(ctx context.Context, id string) (*PersistedDocument, error)

	// Save upserts a document snapshot.
	Save(ctx context.Context, doc *PersistedDocument) error

	// Exists reports whether a snapshot exists without loading its text.
	Exists(ctx context.Context, id string) (bool, error)

	// Count returns the number of persisted documents.
	Count(ctx context.Context) (int64, error)

	// Size returns the on-disk size of the store in bytes, or -1 if the
	// backend cannot report it.
	Size(ctx context.Context) (int64, error)

	// Close releases the underlying database connection.
	Close() error
}
