// Package transcript holds the ordered chat log of one conversation session.
//
// Entries are append-only: once stored, an entry is never changed or
// removed. Rendering concerns (reference block stripping, style classes)
// are applied to copies.
package transcript

import (
	"sync"
	"time"

	"github.com/DonggunSe0/aibbot/internal/domain"
	"github.com/google/uuid"
)

// TimestampLayout is the human-readable layout used for entry timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Recorder observes every appended entry.
type Recorder interface {
	Record(entry domain.ChatEntry)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(entry domain.ChatEntry)

// Record calls f(entry).
func (f RecorderFunc) Record(entry domain.ChatEntry) {
	f(entry)
}

// Transcript is an append-only sequence of chat entries. It is safe for
// concurrent use.
type Transcript struct {
	mu       sync.RWMutex
	entries  []domain.ChatEntry
	recorder Recorder
	now      func() time.Time
}

// New creates an empty transcript. recorder may be nil.
func New(recorder Recorder) *Transcript {
	return &Transcript{
		recorder: recorder,
		now:      time.Now,
	}
}

// Append stores a copy of entry at the end of the transcript and returns
// the stored copy. ID and Timestamp are assigned here; an empty
// MessageType becomes plain.
func (t *Transcript) Append(entry domain.ChatEntry) domain.ChatEntry {
	stored := entry.Clone()
	stored.ID = uuid.NewString()
	if stored.MessageType == "" {
		stored.MessageType = domain.MessageTypePlain
	}

	t.mu.Lock()
	stored.Timestamp = t.now().Format(TimestampLayout)
	t.entries = append(t.entries, stored)
	t.mu.Unlock()

	if t.recorder != nil {
		t.recorder.Record(stored.Clone())
	}
	return stored.Clone()
}

// Entries returns a copy of all entries in append order.
func (t *Transcript) Entries() []domain.ChatEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.ChatEntry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
