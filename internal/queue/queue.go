// Package queue implements the per-destination instruction queue with
// urgent preemption and important preservation.
package queue

import (
	"sync"

	"github.com/gjbm2/screen-machine/internal/core"
)

// Entry is one queued instruction plus the flags and block identity it was
// admitted with.
type Entry struct {
	Instruction core.Instruction
	Urgent      bool
	Important   bool

	// BlockID groups the entries of one admitted block, so the runtime
	// can tell when an event trigger's block has fully drained.
	BlockID string

	// Source names the block origin (initial, trigger, event, final).
	Source string
}

// Queue is a per-destination instruction queue. Admission rules:
//
//   - urgent push: drop queued non-important entries, prepend the new block;
//   - important push: append regardless of queue contents;
//   - normal push: append only when the queue is empty, drop otherwise.
//
// The normal-drop policy is deliberate. Triggers re-evaluate every tick, so
// a dropped normal block is re-offered on the next tick if still valid,
// whereas admitting it now would interleave stale and fresh work.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// PushBlock admits a block of instructions under the given flags. It
// reports whether the block was admitted.
func (q *Queue) PushBlock(instrs []core.Instruction, urgent, important bool, blockID, source string) bool {
	if len(instrs) == 0 {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	block := make([]Entry, 0, len(instrs))
	for _, in := range instrs {
		block = append(block, Entry{
			Instruction: in,
			Urgent:      urgent,
			Important:   important,
			BlockID:     blockID,
			Source:      source,
		})
	}

	switch {
	case urgent:
		var kept []Entry
		for _, e := range q.entries {
			if e.Important {
				kept = append(kept, e)
			}
		}
		q.entries = append(block, kept...)
	case important:
		q.entries = append(q.entries, block...)
	default:
		if len(q.entries) > 0 {
			return false
		}
		q.entries = block
	}
	return true
}

// PopNext removes and returns the entry at the front of the queue. With
// urgentOnly it only pops when the front entry is urgent.
func (q *Queue) PopNext(urgentOnly bool) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}
	if urgentOnly && !q.entries[0].Urgent {
		return nil
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return &entry
}

// PeekNextUrgent returns the front entry if it is urgent, without removing
// it.
func (q *Queue) PeekNextUrgent() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 || !q.entries[0].Urgent {
		return nil
	}
	entry := q.entries[0]
	return &entry
}

// RemoveNonImportant drops every queued entry that is not important.
func (q *Queue) RemoveNonImportant() {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept []Entry
	for _, e := range q.entries {
		if e.Important {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

// RemoveBlock drops the remaining non-important entries of one block.
func (q *Queue) RemoveBlock(blockID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept []Entry
	for _, e := range q.entries {
		if e.BlockID != blockID || e.Important {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

// HasBlock reports whether any entry of the given block is still queued.
func (q *Queue) HasBlock(blockID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.BlockID == blockID {
			return true
		}
	}
	return false
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// IsEmpty reports whether the queue has no entries.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
