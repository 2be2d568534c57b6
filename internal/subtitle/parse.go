package subtitle

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

var timingRe = regexp.MustCompile(
	`^\s*(\d+):(\d{1,2}):(\d{1,2})[,.](\d{1,3})\s*-->\s*(\d+):(\d{1,2}):(\d{1,2})[,.](\d{1,3})`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File is a parsed subtitle file.
type File struct {
	Path     string
	Encoding string
	Cues     []Cue
}

// Parse reads SRT content. Multi-line cue text is joined with spaces and
// cues whose text is blank are dropped.
func Parse(r io.Reader) ([]Cue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	return ParseString(string(bytes.TrimPrefix(data, utf8BOM)))
}

// ParseString parses SRT content held in a string.
func ParseString(content string) ([]Cue, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var cues []Cue
	for _, block := range splitBlocks(content) {
		cue, ok, err := parseBlock(block.lines, len(cues)+1)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", block.line, err)
		}
		if ok {
			cues = append(cues, cue)
		}
	}
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	return cues, nil
}

type block struct {
	line  int
	lines []string
}

// splitBlocks groups non-blank lines, remembering each group's first line.
func splitBlocks(content string) []block {
	var blocks []block
	var cur *block
	for i, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			cur = nil
			continue
		}
		if cur == nil {
			blocks = append(blocks, block{line: i + 1})
			cur = &blocks[len(blocks)-1]
		}
		cur.lines = append(cur.lines, strings.TrimRight(line, " \t"))
	}
	return blocks
}

// parseBlock parses one cue. The index line may be missing, in which case
// fallback is used. ok is false for cues with blank text.
func parseBlock(lines []string, fallback int) (Cue, bool, error) {
	index := fallback
	if !timingRe.MatchString(lines[0]) {
		n, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil || n < 1 {
			return Cue{}, false, fmt.Errorf("%w: expected cue index, got %q", ErrMalformed, lines[0])
		}
		index = n
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return Cue{}, false, fmt.Errorf("%w: cue %d has no timing line", ErrMalformed, index)
	}

	m := timingRe.FindStringSubmatch(lines[0])
	if m == nil {
		return Cue{}, false, fmt.Errorf("%w: cue %d: bad timing %q", ErrMalformed, index, lines[0])
	}
	start := timestamp(m[1:5])
	end := timestamp(m[5:9])

	parts := make([]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		if t := strings.TrimSpace(l); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, " ")
	if text == "" {
		return Cue{}, false, nil
	}
	if end <= start {
		return Cue{}, false, fmt.Errorf("%w: cue %d ends at %s, not after its start %s",
			ErrInvalidCue, index, Timestamp(end), Timestamp(start))
	}
	return Cue{Index: index, Start: start, End: end, Text: text}, true, nil
}

// timestamp converts h, m, s, fraction groups. The fraction is read as
// milliseconds after right-padding to three digits.
func timestamp(g []string) time.Duration {
	h, _ := strconv.Atoi(g[0])
	m, _ := strconv.Atoi(g[1])
	s, _ := strconv.Atoi(g[2])
	frac := g[3] + strings.Repeat("0", 3-len(g[3]))
	ms, _ := strconv.Atoi(frac)
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond
}

// fallbackEncodings are tried in order for files that are not UTF-8.
// GB2312 is a subset of GBK and needs no separate attempt.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"gbk", simplifiedchinese.GBK},
	{"big5", traditionalchinese.Big5},
}

// Decode converts raw file bytes to text, reporting the encoding used:
// utf-8, utf-8-sig, gbk or big5.
func Decode(data []byte) (string, string, error) {
	if bytes.HasPrefix(data, utf8BOM) && utf8.Valid(data) {
		return string(data[len(utf8BOM):]), "utf-8-sig", nil
	}
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}
	for _, fb := range fallbackEncodings {
		out, err := fb.enc.NewDecoder().Bytes(data)
		if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), fb.name, nil
	}
	return "", "", ErrUndecodable
}

// ParseFile reads and parses an .srt file, detecting its encoding.
func ParseFile(path string) (*File, error) {
	if !strings.EqualFold(filepath.Ext(path), ".srt") {
		return nil, fmt.Errorf("%w: %s", ErrNotSRT, path)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided subtitle path
	if err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	text, enc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cues, err := ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Path: path, Encoding: enc, Cues: cues}, nil
}
