package timeline_test

// Notes:
// - A 1 kHz mono format makes one frame equal one millisecond, so sample
//   indexes map directly to track positions.
// - Segments are filled with a constant marker value to check placement.

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/timeline"
)

var msFormat = audio.Format{SampleRate: 1000, Channels: 1}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// tone returns n ms of constant value v.
func tone(t *testing.T, n int, v int16) audio.Buffer {
	t.Helper()
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	b, err := audio.New(msFormat, s)
	if err != nil {
		t.Fatalf("audio.New() unexpected error: %v", err)
	}
	return b
}

func newAssembler(t *testing.T, opts ...timeline.Option) *timeline.Assembler {
	t.Helper()
	a, err := timeline.New(msFormat, opts...)
	if err != nil {
		t.Fatalf("timeline.New() unexpected error: %v", err)
	}
	return a
}

type stubStretcher struct {
	calls  int
	err    error
	factor float64
}

func (s *stubStretcher) Stretch(_ context.Context, buf audio.Buffer, factor float64) (audio.Buffer, error) {
	s.calls++
	s.factor = factor
	if s.err != nil {
		return audio.Buffer{}, s.err
	}
	return buf.Speedup(factor), nil
}

// ---------------------------------------------------------------------------
// TestAvailable
// ---------------------------------------------------------------------------

func TestAvailable(t *testing.T) {
	t.Parallel()

	next := ms(2500)
	late := ms(9000)
	tests := []struct {
		name string
		next *time.Duration
		want time.Duration
	}{
		{name: "own window", next: nil, want: ms(3000)},
		{name: "next cue starts earlier", next: &next, want: ms(1500)},
		{name: "next cue starts later", next: &late, want: ms(3000)},
	}
	for _, tt := range tests {
		if got := timeline.Available(ms(1000), ms(4000), tt.next); got != tt.want {
			t.Errorf("%s: Available() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// TestCorrect - Overlap policies
// ---------------------------------------------------------------------------

func TestCorrect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		policy    timeline.Policy
		audioMs   int
		wantMs    int64
		wantStats timeline.OverlapStatistics
		wantFade  bool
	}{
		{
			name:    "fits untouched",
			policy:  timeline.SpeedAdjust,
			audioMs: 900,
			wantMs:  900,
		},
		{
			name:    "speed adjust within limit",
			policy:  timeline.SpeedAdjust,
			audioMs: 1200,
			wantMs:  1000,
			wantStats: timeline.OverlapStatistics{
				TotalOverlaps: 1, SpeedAdjusted: 1, MaxSpeedFactor: 1.2, TotalTimeAdjusted: ms(200),
			},
		},
		{
			name:    "speed adjust exactly at limit",
			policy:  timeline.SpeedAdjust,
			audioMs: 1500,
			wantMs:  1000,
			wantStats: timeline.OverlapStatistics{
				TotalOverlaps: 1, SpeedAdjusted: 1, MaxSpeedFactor: 1.5, TotalTimeAdjusted: ms(500),
			},
		},
		{
			name:      "speed adjust above limit truncates",
			policy:    timeline.SpeedAdjust,
			audioMs:   1600,
			wantMs:    1000,
			wantStats: timeline.OverlapStatistics{TotalOverlaps: 1, Truncated: 1},
			wantFade:  true,
		},
		{
			name:      "truncate policy ignores factor",
			policy:    timeline.Truncate,
			audioMs:   1100,
			wantMs:    1000,
			wantStats: timeline.OverlapStatistics{TotalOverlaps: 1, Truncated: 1},
			wantFade:  true,
		},
		{
			name:      "warn only keeps audio",
			policy:    timeline.WarnOnly,
			audioMs:   3000,
			wantMs:    3000,
			wantStats: timeline.OverlapStatistics{TotalOverlaps: 1, WarnedOnly: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newAssembler(t, timeline.WithPolicy(tt.policy))
			got, err := a.Correct(context.Background(), tone(t, tt.audioMs, 1000), ms(0), ms(1000), nil)
			if err != nil {
				t.Fatalf("Correct() unexpected error: %v", err)
			}
			if got.DurationMs() != tt.wantMs {
				t.Errorf("DurationMs() = %d, want %d", got.DurationMs(), tt.wantMs)
			}
			if a.Stats() != tt.wantStats {
				t.Errorf("Stats() = %+v, want %+v", a.Stats(), tt.wantStats)
			}
			s := got.Samples()
			if tt.wantFade && s[len(s)-1] != 0 {
				t.Errorf("last sample = %d, want faded to 0", s[len(s)-1])
			}
			if !tt.wantFade && s[len(s)-1] != 1000 {
				t.Errorf("last sample = %d, want 1000 (no fade)", s[len(s)-1])
			}
		})
	}
}

func TestCorrect_NextStartLimitsWindow(t *testing.T) {
	t.Parallel()

	a := newAssembler(t)
	next := ms(1800)
	got, err := a.Correct(context.Background(), tone(t, 2000, 1), ms(1000), ms(4000), &next)
	if err != nil {
		t.Fatalf("Correct() unexpected error: %v", err)
	}
	// 2000 ms into 800 ms is 2.5x, above the limit.
	if got.DurationMs() != 800 || a.Stats().Truncated != 1 {
		t.Errorf("DurationMs() = %d, Stats() = %+v", got.DurationMs(), a.Stats())
	}
}

func TestCorrect_ZeroWindow(t *testing.T) {
	t.Parallel()

	a := newAssembler(t)
	next := ms(1000)
	got, err := a.Correct(context.Background(), tone(t, 500, 1), ms(1000), ms(2000), &next)
	if err != nil {
		t.Fatalf("Correct() unexpected error: %v", err)
	}
	if !got.IsEmpty() || a.Stats().Truncated != 1 {
		t.Errorf("Correct() = %v, Stats() = %+v, want empty and truncated", got.Duration(), a.Stats())
	}
}

func TestCorrect_Fade(t *testing.T) {
	t.Parallel()

	a := newAssembler(t, timeline.WithPolicy(timeline.Truncate), timeline.WithFade(0))
	got, _ := a.Correct(context.Background(), tone(t, 1500, 7), 0, ms(1000), nil)
	if s := got.Samples(); s[len(s)-1] != 7 {
		t.Errorf("last sample = %d, want 7 with fade disabled", s[len(s)-1])
	}

	a = newAssembler(t, timeline.WithPolicy(timeline.Truncate), timeline.WithFade(ms(100)))
	got, _ = a.Correct(context.Background(), tone(t, 1500, 1000), 0, ms(1000), nil)
	s := got.Samples()
	if s[899] != 1000 || s[950] >= 1000 || s[999] != 0 {
		t.Errorf("fade samples = %d, %d, %d, want 1000, <1000, 0", s[899], s[950], s[999])
	}
}

func TestCorrect_Stretcher(t *testing.T) {
	t.Parallel()

	t.Run("custom stretcher receives factor", func(t *testing.T) {
		t.Parallel()

		st := &stubStretcher{}
		a := newAssembler(t, timeline.WithStretcher(st))
		got, err := a.Correct(context.Background(), tone(t, 1250, 1), 0, ms(1000), nil)
		if err != nil {
			t.Fatalf("Correct() unexpected error: %v", err)
		}
		if st.calls != 1 || math.Abs(st.factor-1.25) > 1e-9 {
			t.Errorf("stretcher calls = %d factor = %v, want 1 and 1.25", st.calls, st.factor)
		}
		if got.DurationMs() != 1000 {
			t.Errorf("DurationMs() = %d, want 1000", got.DurationMs())
		}
	})

	t.Run("failure falls back to naive resample", func(t *testing.T) {
		t.Parallel()

		st := &stubStretcher{err: errors.New("ffmpeg crashed")}
		a := newAssembler(t, timeline.WithStretcher(st))
		got, err := a.Correct(context.Background(), tone(t, 1250, 1), 0, ms(1000), nil)
		if err != nil {
			t.Fatalf("Correct() unexpected error: %v", err)
		}
		if got.DurationMs() != 1000 || a.Stats().SpeedAdjusted != 1 {
			t.Errorf("DurationMs() = %d, Stats() = %+v", got.DurationMs(), a.Stats())
		}
	})

	t.Run("cancellation propagates", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		st := &stubStretcher{err: context.Canceled}
		a := newAssembler(t, timeline.WithStretcher(st))
		if _, err := a.Correct(ctx, tone(t, 1250, 1), 0, ms(1000), nil); !errors.Is(err, context.Canceled) {
			t.Errorf("Correct() error = %v, want context.Canceled", err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestAssemble - Concatenation
// ---------------------------------------------------------------------------

func TestAssemble_OrdersByStart(t *testing.T) {
	t.Parallel()

	a := newAssembler(t)
	mustAdd(t, a, ms(3000), tone(t, 500, 3))
	mustAdd(t, a, ms(0), tone(t, 500, 1))
	mustAdd(t, a, ms(1000), tone(t, 500, 2))

	track, err := a.Assemble(ms(4000))
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if track.DurationMs() != 4000 {
		t.Fatalf("DurationMs() = %d, want 4000", track.DurationMs())
	}
	s := track.Samples()
	checks := map[int]int16{0: 1, 499: 1, 500: 0, 999: 0, 1000: 2, 1499: 2, 1500: 0, 3000: 3, 3499: 3, 3500: 0, 3999: 0}
	for idx, want := range checks {
		if s[idx] != want {
			t.Errorf("sample[%d] = %d, want %d", idx, s[idx], want)
		}
	}
}

func TestAssemble_TailPadding(t *testing.T) {
	t.Parallel()

	a := newAssembler(t)
	mustAdd(t, a, ms(8000), tone(t, 1800, 1))

	track, err := a.Assemble(ms(10000))
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if track.DurationMs() != 10000 {
		t.Errorf("DurationMs() = %d, want 10000", track.DurationMs())
	}
}

func TestAssemble_ResidualOverlapDrifts(t *testing.T) {
	t.Parallel()

	a := newAssembler(t)
	mustAdd(t, a, ms(0), tone(t, 1500, 1))
	mustAdd(t, a, ms(1000), tone(t, 1000, 2))

	track, err := a.Assemble(ms(2000))
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	// Back-to-back: no negative silence, the second segment starts at 1500.
	if track.DurationMs() != 2500 {
		t.Errorf("DurationMs() = %d, want 2500", track.DurationMs())
	}
	s := track.Samples()
	if s[1499] != 1 || s[1500] != 2 {
		t.Errorf("boundary samples = %d, %d, want 1, 2", s[1499], s[1500])
	}
}

func TestAssemble_StableOnTies(t *testing.T) {
	t.Parallel()

	a := newAssembler(t)
	mustAdd(t, a, ms(0), tone(t, 10, 1))
	mustAdd(t, a, ms(0), tone(t, 10, 2))

	track, _ := a.Assemble(0)
	s := track.Samples()
	if s[0] != 1 || s[10] != 2 {
		t.Errorf("samples = %d, %d, want insertion order 1, 2", s[0], s[10])
	}
}

func TestAssemble_Empty(t *testing.T) {
	t.Parallel()

	track, err := newAssembler(t).Assemble(ms(1500))
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if track.DurationMs() != 1500 || track.Format() != msFormat {
		t.Errorf("Assemble() = %v %v, want 1.5s silence in %v", track.Duration(), track.Format(), msFormat)
	}
}

func TestAdd_ConvertsFormat(t *testing.T) {
	t.Parallel()

	a := newAssembler(t)
	stereo := audio.Silence(audio.Format{SampleRate: 2000, Channels: 2}, time.Second)
	mustAdd(t, a, 0, stereo)

	track, _ := a.Assemble(0)
	if track.Format() != msFormat || track.DurationMs() != 1000 {
		t.Errorf("Assemble() = %v %v, want 1s in %v", track.Format(), track.Duration(), msFormat)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	a := newAssembler(t, timeline.WithPolicy(timeline.WarnOnly))
	_, _ = a.Correct(context.Background(), tone(t, 2000, 1), 0, ms(1000), nil)
	mustAdd(t, a, 0, tone(t, 10, 1))

	a.Reset()
	if a.Len() != 0 || a.Stats() != (timeline.OverlapStatistics{}) {
		t.Errorf("after Reset Len() = %d Stats() = %+v", a.Len(), a.Stats())
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	t.Parallel()

	if _, err := timeline.New(audio.Format{}); !errors.Is(err, audio.ErrInvalidFormat) {
		t.Errorf("New() error = %v, want ErrInvalidFormat", err)
	}
}

func mustAdd(t *testing.T, a *timeline.Assembler, start time.Duration, buf audio.Buffer) {
	t.Helper()
	if err := a.Add(start, buf); err != nil {
		t.Fatalf("Add(%v) unexpected error: %v", start, err)
	}
}
