package tts_test

import (
	"testing"

	"github.com/alnah/go-subvoice/internal/audio"
)

func audioMono(rate int) audio.Format {
	return audio.Format{SampleRate: rate, Channels: 1}
}

// wavOf returns the WAV encoding of n frames of silence at rate.
func wavOf(t *testing.T, rate, frames int) []byte {
	t.Helper()
	buf, err := audio.New(audioMono(rate), make([]int16, frames))
	if err != nil {
		t.Fatalf("audio.New() unexpected error: %v", err)
	}
	data, err := audio.WAVBytes(buf)
	if err != nil {
		t.Fatalf("WAVBytes() unexpected error: %v", err)
	}
	return data
}
