// Package session identifies one conversion and pins the sampling seed so
// every cue of that conversion is voiced consistently.
package session

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/alnah/go-subvoice/internal/tts"
)

// maxDerivedSeed bounds seeds derived from the session id.
const maxDerivedSeed = 999_999

// Session is one conversion run.
type Session struct {
	ID      string
	Seed    int64
	Started time.Time
}

// New starts a session. A positive seed is kept; otherwise one in
// [1, 999999] is derived from the session id.
func New(seed int64) *Session {
	id := uuid.New()
	if seed <= 0 {
		seed = deriveSeed(id)
	}
	return &Session{ID: id.String(), Seed: seed, Started: time.Now()}
}

func deriveSeed(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8])%maxDerivedSeed) + 1
}

// Apply returns v with the session seed unless v already pins a positive
// seed of its own.
func (s *Session) Apply(v tts.VoiceSettings) tts.VoiceSettings {
	if v.Seed > 0 {
		return v
	}
	return v.WithSeed(s.Seed)
}

// Short returns the first block of the id, enough to tell runs apart in logs.
func (s *Session) Short() string {
	if len(s.ID) < 8 {
		return s.ID
	}
	return s.ID[:8]
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration { return time.Since(s.Started) }
