package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/ffmpeg"
)

// formatWAV is written without ffmpeg.
const formatWAV = "wav"

// outputFormats lists the accepted track extensions.
func outputFormats() []string {
	return append([]string{formatWAV}, ffmpeg.EncodeFormats()...)
}

// outputFormat returns the lowercase extension of path without its dot.
func outputFormat(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// checkOutputFormat rejects extensions no exporter handles.
func checkOutputFormat(path string) error {
	f := outputFormat(path)
	if !slices.Contains(outputFormats(), f) {
		return fmt.Errorf("%q (supported: %s): %w", filepath.Ext(path), strings.Join(outputFormats(), ", "), ErrUnsupportedFormat)
	}
	return nil
}

// deriveOutputPath swaps a subtitle extension for the track format.
// Example: "episode.srt", "wav" -> "episode.wav"
func deriveOutputPath(inputPath, format string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + "." + format
}

// checkOutputFree fails with ErrOutputExists when path exists and force is
// not set.
func checkOutputFree(path string, force bool) error {
	if force {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w (use --force to overwrite)", path, ErrOutputExists)
	}
	return nil
}

// writeTrack exports buf to path. WAV is written directly; other formats
// are encoded by ffmpeg into a hidden sibling and renamed into place.
func writeTrack(ctx context.Context, env *Env, ffmpegPath string, buf audio.Buffer, path string, force bool) error {
	if outputFormat(path) == formatWAV {
		data, err := audio.WAVBytes(buf)
		if err != nil {
			return fmt.Errorf("encode wav: %w", err)
		}
		return writeFileAtomic(path, data, force)
	}

	if err := checkOutputFree(path, force); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".subvoice-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("cannot create output file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if err := env.Encoder.Encode(ctx, ffmpegPath, buf, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cannot move output into place: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to path.
// Without force it fails if the file already exists (O_EXCL), preventing
// accidental overwrites. On write failure, the partial file is removed.
func writeFileAtomic(path string, data []byte, force bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if force {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w (use --force to overwrite)", path, ErrOutputExists)
		}
		return fmt.Errorf("cannot create output file: %w", err)
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}()

	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}

	return nil
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable renders rows under headers with rounded borders. Missing
// cells are left blank. colorize bolds the header.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment, colorize bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	style := table.StyleRounded
	style.Format.Header = text.FormatDefault
	if colorize {
		style.Color.Header = text.Colors{text.Bold}
	}
	tw.SetStyle(style)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderPairs renders a two-column key/value table.
func renderPairs(title string, pairs [][2]string, colorize bool) string {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{p[0], p[1]})
	}
	return renderTable([]string{title, ""}, rows, []columnAlignment{alignLeft, alignRight}, colorize)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
