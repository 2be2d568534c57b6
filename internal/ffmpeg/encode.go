package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-subvoice/internal/audio"
)

// codecArgs maps export formats to encoder arguments.
var codecArgs = map[string][]string{
	"mp3":  {"-codec:a", "libmp3lame", "-q:a", "2"},
	"m4a":  {"-codec:a", "aac", "-b:a", "192k"},
	"ogg":  {"-codec:a", "libvorbis", "-q:a", "5"},
	"flac": {"-codec:a", "flac"},
}

// EncodeFormats lists the formats Encode can produce.
func EncodeFormats() []string {
	return []string{"mp3", "m4a", "ogg", "flac"}
}

// Encode writes buf to dst in the format named by dst's extension. The
// track is staged as WAV next to dst so an interrupted encode never leaves
// a half-written input behind.
func (e *Executor) Encode(ctx context.Context, ffmpegPath string, buf audio.Buffer, dst string) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(dst)), ".")
	codec, ok := codecArgs[format]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".subvoice-*.wav")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := audio.WriteWAVFile(tmpPath, buf); err != nil {
		return fmt.Errorf("stage wav: %w", err)
	}

	args := append([]string{"-hide_banner", "-loglevel", "error", "-y", "-i", tmpPath}, codec...)
	args = append(args, dst)
	if err := e.runGraceful(ctx, ffmpegPath, args, gracefulTimeout); err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

// Encode writes buf to dst with the default Executor.
func Encode(ctx context.Context, ffmpegPath string, buf audio.Buffer, dst string) error {
	return getDefaultExecutor().Encode(ctx, ffmpegPath, buf, dst)
}
