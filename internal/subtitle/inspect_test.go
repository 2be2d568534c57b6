package subtitle_test

import (
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-subvoice/internal/subtitle"
)

func cue(i int, startMs, endMs int, text string) subtitle.Cue {
	return subtitle.Cue{
		Index: i,
		Start: time.Duration(startMs) * time.Millisecond,
		End:   time.Duration(endMs) * time.Millisecond,
		Text:  text,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cues := []subtitle.Cue{
		cue(1, 0, 2000, "fine"),
		cue(2, 1500, 1550, "overlapped and short"),
		cue(3, 3000, 14000, strings.Repeat("字", 201)),
	}

	got := subtitle.Validate(cues)
	kinds := map[subtitle.WarningKind]int{}
	for _, w := range got {
		kinds[w.Kind]++
	}
	want := map[subtitle.WarningKind]int{
		subtitle.WarnOverlap:  1,
		subtitle.WarnShort:    1,
		subtitle.WarnLong:     1,
		subtitle.WarnLongText: 1,
	}
	for k, n := range want {
		if kinds[k] != n {
			t.Errorf("warnings of kind %s = %d, want %d (all: %v)", k, kinds[k], n, got)
		}
	}
	if got[0].Index != 1 || !strings.Contains(got[0].Message, "#2 starts at 00:00:01.500") {
		t.Errorf("overlap warning = %+v", got[0])
	}

	if w := subtitle.Validate([]subtitle.Cue{cue(1, 0, 1000, "ok")}); len(w) != 0 {
		t.Errorf("Validate(clean) = %v, want none", w)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := subtitle.Summarize([]subtitle.Cue{
		cue(1, 1000, 3000, "你好"),
		cue(2, 5000, 6000, "abcd"),
	})
	want := subtitle.Stats{
		Count:           2,
		Span:            5 * time.Second,
		SpeechTime:      3 * time.Second,
		AverageDuration: 1500 * time.Millisecond,
		Runes:           6,
		AverageRunes:    3,
		First:           time.Second,
		Last:            6 * time.Second,
	}
	if s != want {
		t.Errorf("Summarize() = %+v, want %+v", s, want)
	}
	if (subtitle.Summarize(nil) != subtitle.Stats{}) {
		t.Error("Summarize(nil) is not zero")
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	cues := []subtitle.Cue{cue(1, 0, 1, "a"), cue(2, 1, 2, "b"), cue(3, 2, 3, "c")}
	tests := []struct {
		n    int
		want int
	}{
		{n: 0, want: 3},
		{n: -1, want: 3},
		{n: 2, want: 2},
		{n: 10, want: 3},
	}
	for _, tt := range tests {
		if got := len(subtitle.Preview(cues, tt.n)); got != tt.want {
			t.Errorf("len(Preview(%d)) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestCue_String(t *testing.T) {
	t.Parallel()

	got := cue(3, 61500, 3723004, "hello").String()
	want := "#3 00:01:01.500 → 01:02:03.004 hello"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if subtitle.LastEnd([]subtitle.Cue{cue(1, 0, 5000, "a"), cue(2, 1000, 2000, "b")}) != 5*time.Second {
		t.Error("LastEnd() did not return the latest end")
	}
}
