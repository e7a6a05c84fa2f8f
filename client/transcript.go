// Package client implements the client-side sync engine: it merges
// optimistic local entries, synchronous relay responses, and the live change
// feed into one duplicate-free, append-only transcript.
package client

import (
	"sync"
	"time"
)

// DedupTolerance is the timestamp window within which two entries with the
// same role and text are considered the same logical message. Optimistic
// entries use the client clock and confirmed entries use the server clock, so
// the window has to absorb clock skew plus request latency.
const DedupTolerance = 15 * time.Second

// Entry is one rendered transcript line.
type Entry struct {
	// ID is the store id for confirmed entries, a "local_" id for
	// optimistic ones, and a "sys_" id for synthetic local-only entries.
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsBot     bool      `json:"is_bot"`
	CreatedAt time.Time `json:"created_at"`
	// Pending marks an entry not yet confirmed by the store.
	Pending bool `json:"pending,omitempty"`
	// Synthetic marks a purely local entry (greeting, send error) that is
	// never persisted and never reconciled against the store.
	Synthetic bool `json:"synthetic,omitempty"`

	// absorbed marks a confirmed entry whose local pending copy has already
	// been reconciled, either confirmed in place or dropped on late arrival.
	// Further pending entries with the same text are new messages.
	absorbed bool
}

// Transcript is an append-only, deduplicated list of entries for one owner.
// Entries are rendered in arrival order and never reordered retroactively;
// ordering by creation time is best effort under clock skew.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]bool // confirmed store ids already displayed
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{seen: make(map[string]bool)}
}

// Add merges an entry into the transcript and reports whether a new line was
// displayed.
//
// The same bot reply can arrive twice, once via the relay response and once
// via the change feed, and the feed copy is the only one carrying a store id.
// Entries are therefore matched by logical equality, (role, text, timestamp
// within DedupTolerance), not by id alone. A confirmed arrival retires the
// matching pending entry in place, so the transcript holds at most one
// displayed copy of any logical message regardless of arrival order.
//
// The merge only ever pairs a pending copy with a confirmed one: two entries
// with distinct store ids are distinct rows, and a confirmed entry absorbs at
// most one local copy, so repeating the same text produces a new line every
// time.
func (t *Transcript) Add(e Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	confirmed := !e.Pending && !e.Synthetic

	if confirmed && t.seen[e.ID] {
		return false
	}

	if !e.Synthetic {
		for i := range t.entries {
			existing := &t.entries[i]
			if !t.logicallyEqual(*existing, e) {
				continue
			}
			if existing.Pending && confirmed {
				// Confirm in place: adopt the store id and server
				// timestamp but keep the rendered position.
				existing.ID = e.ID
				existing.CreatedAt = e.CreatedAt
				existing.Pending = false
				existing.absorbed = true
				t.seen[e.ID] = true
				return false
			}
			if !existing.Pending && e.Pending && !existing.absorbed {
				// The feed copy won the race; drop the late local copy.
				existing.absorbed = true
				return false
			}
		}
	}

	t.entries = append(t.entries, e)
	if confirmed {
		t.seen[e.ID] = true
	}
	return true
}

// logicallyEqual reports whether two entries can be copies of the same
// logical message. Two confirmed entries never are: distinct store ids prove
// distinct rows, and duplicate ids are filtered before matching.
func (t *Transcript) logicallyEqual(a, b Entry) bool {
	if a.Synthetic || b.Synthetic {
		return false
	}
	if !a.Pending && !b.Pending && a.ID != b.ID {
		return false
	}
	if a.IsBot != b.IsBot || a.Text != b.Text {
		return false
	}
	d := a.CreatedAt.Sub(b.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= DedupTolerance
}

// Entries returns a copy of the rendered transcript.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of rendered entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
