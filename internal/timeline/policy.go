package timeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPolicy indicates an overlap policy name that is not recognized.
var ErrUnknownPolicy = errors.New("unknown overlap policy")

// Policy decides what happens to audio longer than its available time.
type Policy int

const (
	// SpeedAdjust speeds the audio up to fit, or truncates with a fade when
	// the required factor exceeds the limit.
	SpeedAdjust Policy = iota
	// Truncate always cuts the audio to fit and fades the cut.
	Truncate
	// WarnOnly leaves the audio unchanged; later segments may overlap.
	WarnOnly
)

var policyNames = [...]string{"speed_adjust", "truncate", "warn_only"}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return policyNames[p]
}

// Policies returns the accepted policy names.
func Policies() []string {
	return policyNames[:]
}

// ParsePolicy parses a policy name, accepting dashes for underscores.
func ParsePolicy(s string) (Policy, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, n := range policyNames {
		if n == name {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (use %s)", ErrUnknownPolicy, s, strings.Join(policyNames[:], ", "))
}
