package upload

import (
	"fmt"
	"strings"
)

// Reserved group names. The privileged group is installed by every
// reconfiguration with priority 0 and slots equal to the global cap; the
// default and leechers groups are always present with operator-supplied
// settings. User-defined groups must not reuse these names.
const (
	GroupPrivileged = "privileged"
	GroupDefault    = "default"
	GroupLeechers   = "leechers"
)

// Strategy is the per-group ordering discipline. It is a closed enum, not a
// plugin point.
type Strategy int

const (
	// StrategyFIFO releases ready uploads in enqueue order.
	StrategyFIFO Strategy = iota

	// StrategyRoundRobin releases ready uploads in ready order, which
	// interleaves users that keep one upload ready at a time.
	StrategyRoundRobin
)

// ParseStrategy parses a strategy name case-insensitively. Accepted values
// are "FirstInFirstOut" and "RoundRobin".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "firstinfirstout":
		return StrategyFIFO, nil
	case "roundrobin":
		return StrategyRoundRobin, nil
	default:
		return 0, fmt.Errorf("unknown queue strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyFIFO:
		return "FirstInFirstOut"
	case StrategyRoundRobin:
		return "RoundRobin"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Group is a scheduling class. Lower Priority values schedule earlier;
// priority 0 is reserved for the privileged group.
type Group struct {
	Name     string
	Priority int
	Slots    int
	Strategy Strategy

	// UsedSlots counts active uploads pinned to this group. It is carried
	// over by name across reconfigurations so in-flight transfers keep
	// their accounting.
	UsedSlots int
}
