package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alnah/go-subvoice/internal/audio"
)

// atempo accepts factors in [0.5, 2.0] per filter instance.
const (
	atempoMin = 0.5
	atempoMax = 2.0
)

// AtempoChain splits factor into atempo stages that each stay within the
// filter's range, e.g. 3.0 becomes [2, 1.5].
func AtempoChain(factor float64) ([]float64, error) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFactor, factor)
	}
	var stages []float64
	for factor > atempoMax {
		stages = append(stages, atempoMax)
		factor /= atempoMax
	}
	for factor < atempoMin {
		stages = append(stages, atempoMin)
		factor /= atempoMin
	}
	return append(stages, factor), nil
}

// filterGraph renders stages as an ffmpeg -filter:a value.
func filterGraph(stages []float64) string {
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = "atempo=" + strconv.FormatFloat(s, 'f', 6, 64)
	}
	return strings.Join(parts, ",")
}

// Stretcher changes audio tempo without changing pitch.
type Stretcher struct {
	path string
	exec *Executor
}

// NewStretcher returns a Stretcher using the ffmpeg binary at path.
// A nil executor uses the default one.
func NewStretcher(path string, e *Executor) *Stretcher {
	if e == nil {
		e = getDefaultExecutor()
	}
	return &Stretcher{path: path, exec: e}
}

// Stretch returns buf played factor times faster. Samples travel as raw
// PCM over stdin and stdout in buf's own format.
func (s *Stretcher) Stretch(ctx context.Context, buf audio.Buffer, factor float64) (audio.Buffer, error) {
	stages, err := AtempoChain(factor)
	if err != nil {
		return audio.Buffer{}, err
	}
	if factor == 1 || buf.IsEmpty() {
		return buf, nil
	}

	f := buf.Format()
	rate := strconv.Itoa(f.SampleRate)
	ch := strconv.Itoa(f.Channels)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", rate, "-ac", ch, "-i", "pipe:0",
		"-filter:a", filterGraph(stages),
		"-f", "s16le", "-ar", rate, "-ac", ch, "pipe:1",
	}

	out, err := s.exec.runPipe(ctx, s.path, args, buf.PCM16LE())
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("time stretch %.2fx: %w", factor, err)
	}
	return audio.FromPCM16LE(out, f)
}
