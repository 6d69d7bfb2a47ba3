// Package transcript holds captured video transcripts in memory, keyed by
// the agent that captured them and the video they belong to. Storage is
// unbounded within a run; the scheduler reclaims memory by deleting an
// agent's transcripts when the agent is destroyed.
package transcript

import (
	"sort"
	"strings"
	"sync"
)

// Segment is one timed caption span.
type Segment struct {
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
	Text   string  `json:"text"`
}

// Key identifies a stored transcript.
type Key struct {
	AgentID string
	VideoID string
}

// Stored is a transcript at rest, segments ordered by start time.
type Stored struct {
	Key      Key
	Language string
	Segments []Segment
}

// Store is the in-memory transcript map shared by the caption extractor
// (writer) and the intel facade (reader).
type Store struct {
	mu sync.RWMutex
	m  map[Key]*Stored
}

func NewStore() *Store {
	return &Store{m: make(map[Key]*Stored)}
}

// Put replaces the transcript for the key. Segments are sorted by start
// time; callers do not have to presort.
func (s *Store) Put(key Key, language string, segments []Segment) {
	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartS < sorted[j].StartS
	})

	s.mu.Lock()
	s.m[key] = &Stored{Key: key, Language: language, Segments: sorted}
	s.mu.Unlock()
}

// Has reports whether a transcript exists for the key.
func (s *Store) Has(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[key]
	return ok
}

// Get returns the stored transcript, or nil when absent.
func (s *Store) Get(key Key) *Stored {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[key]
}

// FullText concatenates segment texts in order, joined by single spaces.
// Absent or empty transcripts yield "".
func (s *Store) FullText(key Key) string {
	s.mu.RLock()
	st := s.m[key]
	s.mu.RUnlock()
	if st == nil || len(st.Segments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(st.Segments))
	for _, seg := range st.Segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// SegmentsInRange returns every segment overlapping [startS, endS].
// Segments are sorted by start time but may overlap each other, so end
// times are not monotone; the upper bound comes from binary search and
// everything before it is checked against startS.
func (s *Store) SegmentsInRange(key Key, startS, endS float64) []Segment {
	s.mu.RLock()
	st := s.m[key]
	s.mu.RUnlock()
	if st == nil {
		return nil
	}

	segs := st.Segments
	hi := sort.Search(len(segs), func(i int) bool {
		return segs[i].StartS > endS
	})

	var out []Segment
	for _, seg := range segs[:hi] {
		if seg.EndS >= startS {
			out = append(out, seg)
		}
	}
	return out
}

// Delete removes one transcript. Deleting an absent key is a no-op.
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// DeleteAgent removes every transcript captured by the agent.
func (s *Store) DeleteAgent(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.m {
		if key.AgentID == agentID {
			delete(s.m, key)
			n++
		}
	}
	return n
}

// Len reports the number of stored transcripts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
