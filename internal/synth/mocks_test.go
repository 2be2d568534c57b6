package synth_test

import (
	"context"
	"time"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/synth"
	"github.com/alnah/go-subvoice/internal/tts"
)

var testFormat = audio.Format{SampleRate: 1000, Channels: 1}

// step is one scripted backend reply.
type step struct {
	dur time.Duration
	err error
}

// scriptedSynth replies with steps in order, repeating the last one.
type scriptedSynth struct {
	name     string
	steps    []step
	requests []tts.Request
}

func (s *scriptedSynth) Name() string { return s.name }

func (s *scriptedSynth) Synthesize(_ context.Context, req tts.Request) (audio.Buffer, error) {
	idx := min(len(s.requests), len(s.steps)-1)
	s.requests = append(s.requests, req)
	st := s.steps[idx]
	if st.err != nil {
		return audio.Buffer{}, st.err
	}
	return audio.Silence(testFormat, st.dur), nil
}

var _ synth.Synthesizer = (*scriptedSynth)(nil)
