package track

import "time"

// Identity is what the domain layer wants back when a vanished object
// reappears: who it was, where it came from, and whether it still owes an
// open removal event.
type Identity struct {
	ObjectID      int64
	Product       string
	OriginalShelf int
	EventActive   bool
}

type memoryEntry struct {
	sig      *Signature
	identity Identity
	added    time.Time
}

// Memory holds appearance signatures of recently vanished objects for a
// bounded window so a track that disappears and reappears can be matched
// back to its prior identity instead of being treated as new. Detector and
// tracker churn otherwise turns one physical pick-up into several phantom
// removal events.
type Memory struct {
	entries   []memoryEntry
	window    time.Duration
	threshold float64
}

// NewMemory creates a re-identification memory. window bounds how long an
// entry is kept; threshold is the minimum similarity for a match.
func NewMemory(window time.Duration, threshold float64) *Memory {
	return &Memory{window: window, threshold: threshold}
}

// Remember stores a vanished object's appearance and identity.
func (m *Memory) Remember(sig *Signature, id Identity, now time.Time) {
	if sig == nil {
		return
	}
	entry := memoryEntry{sig: sig.Clone(), identity: id, added: now}
	entry.sig.LastSeen = now
	m.entries = append(m.entries, entry)
}

// Recall linearly scans the remembered entries and returns the identity of
// the single best match above the similarity threshold, consuming the
// entry. On an exact similarity tie the earliest remembered entry wins.
// Returns ok=false when nothing matches.
func (m *Memory) Recall(sig *Signature, now time.Time) (Identity, bool) {
	m.EvictExpired(now)
	if sig == nil {
		return Identity{}, false
	}

	bestIdx := -1
	bestSim := m.threshold
	for i, e := range m.entries {
		if sim := Similarity(sig, e.sig); sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return Identity{}, false
	}

	id := m.entries[bestIdx].identity
	m.entries = append(m.entries[:bestIdx], m.entries[bestIdx+1:]...)
	return id, true
}

// EvictExpired drops entries older than the memory window.
func (m *Memory) EvictExpired(now time.Time) {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if now.Sub(e.added) <= m.window {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}

// Len returns the number of remembered objects.
func (m *Memory) Len() int { return len(m.entries) }

// Reset drops every remembered entry.
func (m *Memory) Reset() { m.entries = nil }
