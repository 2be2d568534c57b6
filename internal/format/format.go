// Package format renders durations, sizes and counts for terminal reports.
package format

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Duration formats a duration as HH:MM:SS or MM:SS.
func Duration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// DurationHuman formats a duration for human display.
// Examples: "2h", "30m", "1h30m", "45s"
func DurationHuman(d time.Duration) string {
	if d >= time.Hour {
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}

// Size formats a size in bytes with binary units, e.g. "1.5 MiB".
func Size(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// Count formats an integer with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Seconds formats a duration as seconds with millisecond precision, the
// unit used for cue timing, e.g. "2.60s".
func Seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// Factor formats a speed or length ratio, e.g. "1.25x".
func Factor(f float64) string {
	return fmt.Sprintf("%.2fx", f)
}

// Percent formats part of total as a percentage; zero total gives "-".
func Percent(part, total int) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(part)/float64(total))
}
