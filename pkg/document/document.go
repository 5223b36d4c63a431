// Package document implements the per-document collaborative session: the
// revision log, the server-side operational-transformation pipeline, user
// presence, and the websocket connection loop.
package document

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/marmos91/copad/pkg/metrics"
	"github.com/marmos91/copad/pkg/ot"
)

// MaxTextLen is the document size ceiling in code points. An edit whose
// rebased result would exceed it is rejected and its connection closed.
const MaxTextLen = 100_000

// hydrationID tags the synthetic log entry created when a document is
// rebuilt from durable storage; it cannot collide with a session client ID.
const hydrationID = uint64(math.MaxUint64)

// state is the shared mutable session data, protected by Document.mu.
//
// Invariant: text always equals the fold of every logged operation over the
// empty string, and len(operations) is the current revision.
type state struct {
	operations []UserOperation
	text       string
	language   *string
	users      map[uint64]UserInfo
	cursors    map[uint64]CursorData
}

// Document is the in-memory session for one collaboratively edited text.
//
// All exported methods are safe for concurrent use. Mutating methods take
// the write lock, notify edit waiters, and broadcast presence updates to
// subscribed connections; none of them perform I/O under the lock.
type Document struct {
	mu    sync.RWMutex
	state state

	// notify is closed and replaced under mu whenever the revision log
	// grows. Connection loops grab the current channel before re-reading the
	// revision so a concurrent edit can never be missed.
	notify chan struct{}

	subMu sync.Mutex
	subs  map[*subscriber]struct{}

	nextID atomic.Uint64
	killed atomic.Bool

	metrics metrics.CollabMetrics
}

// New creates an empty document session. The metrics value may be the no-op
// implementation but must not be a bare nil interface.
func New(m metrics.CollabMetrics) *Document {
	return &Document{
		state: state{
			users:   make(map[uint64]UserInfo),
			cursors: make(map[uint64]CursorData),
		},
		notify:  make(chan struct{}),
		subs:    make(map[*subscriber]struct{}),
		metrics: m,
	}
}

// NewFromSnapshot creates a session pre-populated with persisted text and
// language. The log starts with a single insert of the stored text, so a
// client connecting afterwards receives the content as regular history from
// revision zero.
func NewFromSnapshot(text string, language *string, m metrics.CollabMetrics) *Document {
	d := New(m)
	if text != "" {
		op := ot.New()
		op.Insert(text)
		d.state.operations = append(d.state.operations, UserOperation{ID: hydrationID, Operation: op})
		d.state.text = text
	}
	d.state.language = language
	return d
}

// NextClientID allocates the next session-scoped client identifier.
func (d *Document) NextClientID() uint64 {
	return d.nextID.Add(1) - 1
}

// Revision returns the current revision, the length of the operation log.
func (d *Document) Revision() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.state.operations)
}

// Text returns a snapshot of the current document text.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.text
}

// Snapshot returns the current text and language together under one read
// lock, for the persistence worker.
func (d *Document) Snapshot() (text string, language *string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.text, d.state.language
}

// Kill flags the session as evicted. Persistence workers observe the flag at
// their next tick and exit; live connections are unaffected.
func (d *Document) Kill() {
	d.killed.Store(true)
}

// Killed reports whether the session has been evicted from the registry.
func (d *Document) Killed() bool {
	return d.killed.Load()
}

// ApplyEdit validates and applies one client edit.
//
// The operation is rebased over every logged operation after the client's
// base revision, size-checked, applied to the text, and appended to the log,
// with all stored cursors re-mapped through it, atomically under the write
// lock. Waiting connection loops are woken afterwards.
//
// Any returned error is fatal for the submitting connection; session state
// is never left partially updated.
func (d *Document) ApplyEdit(id uint64, revision int, op *ot.Operation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := len(d.state.operations)
	if revision < 0 || revision > current {
		d.metrics.RecordEditRejected()
		return fmt.Errorf("got revision %d, but current is %d", revision, current)
	}
	for _, h := range d.state.operations[revision:] {
		rebase, _, err := op.Transform(h.Operation)
		if err != nil {
			d.metrics.RecordEditRejected()
			return fmt.Errorf("transform against revision log: %w", err)
		}
		op = rebase
	}
	if op.TargetLen() > MaxTextLen {
		d.metrics.RecordEditRejected()
		return fmt.Errorf("target length %d exceeds limit of %d code points", op.TargetLen(), MaxTextLen)
	}
	newText, err := op.Apply(d.state.text)
	if err != nil {
		d.metrics.RecordEditRejected()
		return fmt.Errorf("apply edit: %w", err)
	}

	for cid, data := range d.state.cursors {
		d.state.cursors[cid] = transformCursors(op, data)
	}
	d.state.operations = append(d.state.operations, UserOperation{ID: id, Operation: op})
	d.state.text = newText
	d.metrics.RecordEdit()
	d.notifyLocked()
	return nil
}

// transformCursors re-maps every cursor and selection endpoint across op.
func transformCursors(op *ot.Operation, data CursorData) CursorData {
	out := CursorData{
		Cursors:    make([]uint32, len(data.Cursors)),
		Selections: make([][2]uint32, len(data.Selections)),
	}
	for i, c := range data.Cursors {
		out.Cursors[i] = op.TransformIndex(c)
	}
	for i, s := range data.Selections {
		out.Selections[i] = [2]uint32{op.TransformIndex(s[0]), op.TransformIndex(s[1])}
	}
	return out
}

// SetLanguage records the editor language, last writer wins, and broadcasts
// it to all connections.
func (d *Document) SetLanguage(language string) {
	d.mu.Lock()
	d.state.language = &language
	d.mu.Unlock()
	d.broadcast(languageMsg(language))
}

// SetUserInfo records a user's display info and broadcasts it.
func (d *Document) SetUserInfo(id uint64, info UserInfo) {
	d.mu.Lock()
	d.state.users[id] = info
	d.mu.Unlock()
	d.broadcast(userInfoMsg(id, &info))
}

// SetCursorData records a user's cursor state and broadcasts it.
func (d *Document) SetCursorData(id uint64, data CursorData) {
	d.mu.Lock()
	d.state.cursors[id] = data
	d.mu.Unlock()
	d.broadcast(userCursorMsg(id, data))
}

// RemoveUser drops a user's presence on disconnect and broadcasts the
// tombstone so other clients remove them from their user lists.
func (d *Document) RemoveUser(id uint64) {
	d.mu.Lock()
	delete(d.state.users, id)
	delete(d.state.cursors, id)
	d.mu.Unlock()
	d.broadcast(userInfoMsg(id, nil))
}

// historySince returns a copy of the log entries from revision start on.
func (d *Document) historySince(start int) []UserOperation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if start >= len(d.state.operations) {
		return nil
	}
	out := make([]UserOperation, len(d.state.operations)-start)
	copy(out, d.state.operations[start:])
	return out
}

// initialSync captures everything a fresh connection must be told, under a
// single read lock so the picture is consistent.
func (d *Document) initialSync() (msgs []ServerMsg, revision int) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.state.operations) > 0 {
		ops := make([]UserOperation, len(d.state.operations))
		copy(ops, d.state.operations)
		msgs = append(msgs, historyMsg(0, ops))
	}
	if d.state.language != nil {
		msgs = append(msgs, languageMsg(*d.state.language))
	}
	for id, info := range d.state.users {
		info := info
		msgs = append(msgs, userInfoMsg(id, &info))
	}
	for id, data := range d.state.cursors {
		msgs = append(msgs, userCursorMsg(id, data))
	}
	return msgs, len(d.state.operations)
}

// notified returns the channel closed by the next edit. Callers must obtain
// it before reading the revision counter.
func (d *Document) notified() <-chan struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notify
}

// notifyLocked wakes every waiter. Caller holds the write lock.
func (d *Document) notifyLocked() {
	close(d.notify)
	d.notify = make(chan struct{})
}
