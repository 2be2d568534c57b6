// Package audio holds synthesized speech as immutable 16-bit PCM buffers.
//
// Every transformation returns a new Buffer; the receiver is never modified,
// so a Buffer can be handed between pipeline stages without copying.
package audio

import (
	"fmt"
	"math"
	"time"
)

// Format describes the sample layout of a Buffer.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate checks that the format is usable.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("%w: %d Hz, %d channels", ErrInvalidFormat, f.SampleRate, f.Channels)
	}
	return nil
}

// String returns e.g. "44100 Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%d Hz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%d Hz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%d Hz %dch", f.SampleRate, f.Channels)
	}
}

// framesFor returns the number of frames covering d, rounded to nearest.
func (f Format) framesFor(d time.Duration) int {
	if d <= 0 || f.SampleRate <= 0 {
		return 0
	}
	return int((int64(d)*int64(f.SampleRate) + int64(time.Second)/2) / int64(time.Second))
}

// Buffer is interleaved signed 16-bit PCM. The zero value is an empty buffer
// with no format.
type Buffer struct {
	format  Format
	samples []int16
}

// New returns a Buffer holding a copy of samples. len(samples) must be a
// multiple of f.Channels.
func New(f Format, samples []int16) (Buffer, error) {
	if err := f.Validate(); err != nil {
		return Buffer{}, err
	}
	if len(samples)%f.Channels != 0 {
		return Buffer{}, fmt.Errorf("%w: %d samples for %d channels", ErrInvalidFormat, len(samples), f.Channels)
	}
	return Buffer{format: f, samples: append([]int16(nil), samples...)}, nil
}

// Silence returns d of digital silence in format f.
func Silence(f Format, d time.Duration) Buffer {
	n := f.framesFor(d) * max(f.Channels, 0)
	return Buffer{format: f, samples: make([]int16, n)}
}

// Format returns the buffer's sample layout.
func (b Buffer) Format() Format { return b.format }

// Frames returns the number of sample frames.
func (b Buffer) Frames() int {
	if b.format.Channels <= 0 {
		return 0
	}
	return len(b.samples) / b.format.Channels
}

// Samples returns a copy of the interleaved samples.
func (b Buffer) Samples() []int16 {
	return append([]int16(nil), b.samples...)
}

// IsEmpty reports whether the buffer holds no frames.
func (b Buffer) IsEmpty() bool { return b.Frames() == 0 }

// Duration returns the playback length.
func (b Buffer) Duration() time.Duration {
	if b.format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(b.Frames()) * int64(time.Second) / int64(b.format.SampleRate))
}

// DurationMs returns the playback length in whole milliseconds.
func (b Buffer) DurationMs() int64 {
	return b.Duration().Milliseconds()
}

// Append returns b followed by o. An empty b adopts o's format.
func (b Buffer) Append(o Buffer) (Buffer, error) {
	if b.format == (Format{}) {
		return Buffer{format: o.format, samples: append([]int16(nil), o.samples...)}, nil
	}
	if o.IsEmpty() {
		return b, nil
	}
	if b.format != o.format {
		return Buffer{}, fmt.Errorf("%w: %s + %s", ErrFormatMismatch, b.format, o.format)
	}
	out := make([]int16, 0, len(b.samples)+len(o.samples))
	out = append(out, b.samples...)
	out = append(out, o.samples...)
	return Buffer{format: b.format, samples: out}, nil
}

// Concat joins buffers in order. All non-empty buffers must share a format.
func Concat(bufs ...Buffer) (Buffer, error) {
	var f Format
	total := 0
	for _, b := range bufs {
		if b.IsEmpty() {
			if f == (Format{}) {
				f = b.format
			}
			continue
		}
		switch {
		case f == (Format{}) || total == 0:
			f = b.format
		case f != b.format:
			return Buffer{}, fmt.Errorf("%w: %s + %s", ErrFormatMismatch, f, b.format)
		}
		total += len(b.samples)
	}
	out := make([]int16, 0, total)
	for _, b := range bufs {
		out = append(out, b.samples...)
	}
	return Buffer{format: f, samples: out}, nil
}

// Pad returns b followed by d of silence.
func (b Buffer) Pad(d time.Duration) Buffer {
	n := b.format.framesFor(d) * b.format.Channels
	if n <= 0 {
		return b
	}
	out := make([]int16, len(b.samples)+n)
	copy(out, b.samples)
	return Buffer{format: b.format, samples: out}
}

// PadTo returns b extended with silence to exactly d, or b unchanged when it
// is already at least that long.
func (b Buffer) PadTo(d time.Duration) Buffer {
	want := b.format.framesFor(d)
	if want <= b.Frames() {
		return b
	}
	out := make([]int16, want*b.format.Channels)
	copy(out, b.samples)
	return Buffer{format: b.format, samples: out}
}

// Truncate returns the first d of b.
func (b Buffer) Truncate(d time.Duration) Buffer {
	frames := b.format.framesFor(d)
	if frames >= b.Frames() {
		return b
	}
	return Buffer{format: b.format, samples: append([]int16(nil), b.samples[:frames*b.format.Channels]...)}
}

// FadeOut returns b with a linear fade to silence over its last d.
func (b Buffer) FadeOut(d time.Duration) Buffer {
	total := b.Frames()
	n := min(b.format.framesFor(d), total)
	if n <= 0 {
		return b
	}
	out := append([]int16(nil), b.samples...)
	ch := b.format.Channels
	start := total - n
	for i := range n {
		gain := float64(n-i-1) / float64(n)
		for c := range ch {
			idx := (start+i)*ch + c
			out[idx] = int16(math.Round(float64(out[idx]) * gain))
		}
	}
	return Buffer{format: b.format, samples: out}
}

// Speedup returns b played factor times faster by dropping or repeating
// frames. Pitch shifts with the speed; factor <= 0 returns b unchanged.
func (b Buffer) Speedup(factor float64) Buffer {
	if factor <= 0 || factor == 1 || b.IsEmpty() {
		return b
	}
	frames := int(math.Round(float64(b.Frames()) / factor))
	return Buffer{format: b.format, samples: interpolate(b.samples, b.format.Channels, frames)}
}

// Convert returns b resampled to f, preserving duration. Channels are
// averaged down to mono or duplicated up from mono.
func (b Buffer) Convert(f Format) (Buffer, error) {
	if err := f.Validate(); err != nil {
		return Buffer{}, err
	}
	if b.format == f {
		return b, nil
	}
	if b.IsEmpty() {
		return Buffer{format: f}, nil
	}

	samples := b.samples
	switch {
	case b.format.Channels == f.Channels:
	case f.Channels == 1:
		samples = downmix(samples, b.format.Channels)
	case b.format.Channels == 1:
		samples = upmix(samples, f.Channels)
	default:
		return Buffer{}, fmt.Errorf("%w: cannot map %d to %d channels", ErrFormatMismatch, b.format.Channels, f.Channels)
	}

	if b.format.SampleRate != f.SampleRate {
		frames := len(samples) / f.Channels
		target := int(math.Round(float64(frames) * float64(f.SampleRate) / float64(b.format.SampleRate)))
		samples = interpolate(samples, f.Channels, target)
	}
	return Buffer{format: f, samples: samples}, nil
}

// interpolate stretches interleaved frames to exactly outFrames using linear
// interpolation.
func interpolate(src []int16, ch, outFrames int) []int16 {
	inFrames := len(src) / ch
	out := make([]int16, outFrames*ch)
	if inFrames == 0 || outFrames == 0 {
		return out
	}
	if outFrames == 1 || inFrames == 1 {
		for i := range outFrames {
			copy(out[i*ch:(i+1)*ch], src[:ch])
		}
		return out
	}
	step := float64(inFrames-1) / float64(outFrames-1)
	for i := range outFrames {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		k := min(j+1, inFrames-1)
		for c := range ch {
			a := float64(src[j*ch+c])
			z := float64(src[k*ch+c])
			out[i*ch+c] = int16(math.Round(a + (z-a)*frac))
		}
	}
	return out
}

func downmix(src []int16, ch int) []int16 {
	frames := len(src) / ch
	out := make([]int16, frames)
	for i := range frames {
		var sum int
		for c := range ch {
			sum += int(src[i*ch+c])
		}
		out[i] = int16(sum / ch)
	}
	return out
}

func upmix(src []int16, ch int) []int16 {
	out := make([]int16, len(src)*ch)
	for i, s := range src {
		for c := range ch {
			out[i*ch+c] = s
		}
	}
	return out
}
