// Package history keeps a bounded linear undo/redo stack of snapshots.
package history

// DefaultLimit is the number of snapshots kept when no limit is given.
const DefaultLimit = 50

// Manager stores snapshots of type S. Index always points at a stored
// snapshot once the manager has been reset or pushed to. Undo and Redo only
// move the index; stored snapshots are never modified.
type Manager[S any] struct {
	limit   int
	clone   func(S) S
	entries []S
	index   int
}

// New returns a Manager keeping at most limit snapshots. clone deep-copies a
// snapshot on the way in and out; nil means S is copied by value.
func New[S any](limit int, clone func(S) S) *Manager[S] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if clone == nil {
		clone = func(s S) S { return s }
	}
	return &Manager[S]{limit: limit, clone: clone, index: -1}
}

// Reset discards every snapshot and stores initial as the only one.
func (m *Manager[S]) Reset(initial S) {
	m.entries = []S{m.clone(initial)}
	m.index = 0
}

// Clear discards every snapshot.
func (m *Manager[S]) Clear() {
	m.entries = nil
	m.index = -1
}

// Push drops any redo tail, appends s and moves the index to it. When the
// stack exceeds the limit the oldest snapshot is evicted.
func (m *Manager[S]) Push(s S) {
	m.entries = append(m.entries[:m.index+1], m.clone(s))
	if over := len(m.entries) - m.limit; over > 0 {
		clear(m.entries[:over])
		m.entries = m.entries[over:]
	}
	m.index = len(m.entries) - 1
}

// Undo moves back one snapshot and returns it.
func (m *Manager[S]) Undo() (S, bool) {
	if !m.CanUndo() {
		var zero S
		return zero, false
	}
	m.index--
	return m.clone(m.entries[m.index]), true
}

// Redo moves forward one snapshot and returns it.
func (m *Manager[S]) Redo() (S, bool) {
	if !m.CanRedo() {
		var zero S
		return zero, false
	}
	m.index++
	return m.clone(m.entries[m.index]), true
}

// Current returns the snapshot at the index.
func (m *Manager[S]) Current() (S, bool) {
	if m.index < 0 {
		var zero S
		return zero, false
	}
	return m.clone(m.entries[m.index]), true
}

// CanUndo reports whether an older snapshot exists.
func (m *Manager[S]) CanUndo() bool { return m.index > 0 }

// CanRedo reports whether a newer snapshot exists.
func (m *Manager[S]) CanRedo() bool { return m.index >= 0 && m.index < len(m.entries)-1 }

// Len returns the number of stored snapshots.
func (m *Manager[S]) Len() int { return len(m.entries) }

// Index returns the position of the current snapshot, or -1 when empty.
func (m *Manager[S]) Index() int { return m.index }

// Limit returns the snapshot cap.
func (m *Manager[S]) Limit() int { return m.limit }
