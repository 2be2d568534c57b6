package ffmpeg

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-subvoice/internal/audio"
)

// ---------------------------------------------------------------------------
// AtempoChain
// ---------------------------------------------------------------------------

func TestAtempoChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		factor float64
		want   []float64
	}{
		{factor: 1.25, want: []float64{1.25}},
		{factor: 2, want: []float64{2}},
		{factor: 3, want: []float64{2, 1.5}},
		{factor: 5, want: []float64{2, 2, 1.25}},
		{factor: 0.25, want: []float64{0.5, 0.5}},
	}

	for _, tt := range tests {
		got, err := AtempoChain(tt.factor)
		if err != nil {
			t.Fatalf("AtempoChain(%v) unexpected error: %v", tt.factor, err)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("AtempoChain(%v) = %v, want %v", tt.factor, got, tt.want)
		}
		product := 1.0
		for _, s := range got {
			if s < atempoMin || s > atempoMax {
				t.Errorf("AtempoChain(%v) stage %v out of range", tt.factor, s)
			}
			product *= s
		}
		if math.Abs(product-tt.factor) > 1e-9 {
			t.Errorf("AtempoChain(%v) product = %v", tt.factor, product)
		}
	}

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := AtempoChain(bad); !errors.Is(err, ErrInvalidFactor) {
			t.Errorf("AtempoChain(%v) error = %v, want ErrInvalidFactor", bad, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Stretcher.Stretch
// ---------------------------------------------------------------------------

func TestStretcher_Stretch(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	in := audio.Silence(f, 3*time.Second)

	var gotArgs []string
	var gotStdin int
	e := NewExecutor(WithRunPipe(func(_ context.Context, path string, args []string, stdin []byte) ([]byte, error) {
		gotArgs = args
		gotStdin = len(stdin)
		// Pretend ffmpeg produced two seconds.
		return make([]byte, 2*16000*2), nil
	}))

	out, err := NewStretcher("/usr/bin/ffmpeg", e).Stretch(context.Background(), in, 1.5)
	if err != nil {
		t.Fatalf("Stretch() unexpected error: %v", err)
	}
	if out.Duration() != 2*time.Second || out.Format() != f {
		t.Errorf("Stretch() = %v %v, want 2s %v", out.Duration(), out.Format(), f)
	}
	if gotStdin != 3*16000*2 {
		t.Errorf("stdin bytes = %d, want %d", gotStdin, 3*16000*2)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"-f s16le -ar 16000 -ac 1 -i pipe:0", "atempo=1.500000", "pipe:1"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args = %q, want containing %q", joined, want)
		}
	}
}

func TestStretcher_Stretch_NoOp(t *testing.T) {
	t.Parallel()

	called := false
	e := NewExecutor(WithRunPipe(func(context.Context, string, []string, []byte) ([]byte, error) {
		called = true
		return nil, nil
	}))
	in := audio.Silence(audio.Format{SampleRate: 8000, Channels: 1}, time.Second)

	out, err := NewStretcher("ffmpeg", e).Stretch(context.Background(), in, 1)
	if err != nil || out.Duration() != time.Second || called {
		t.Errorf("Stretch(1) = %v, %v, called=%v", out.Duration(), err, called)
	}
}

func TestStretcher_Stretch_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("exit status 1")
	e := NewExecutor(WithRunPipe(func(context.Context, string, []string, []byte) ([]byte, error) {
		return nil, boom
	}))
	in := audio.Silence(audio.Format{SampleRate: 8000, Channels: 1}, time.Second)

	if _, err := NewStretcher("ffmpeg", e).Stretch(context.Background(), in, 1.2); !errors.Is(err, boom) {
		t.Errorf("Stretch() error = %v, want %v", err, boom)
	}
}
