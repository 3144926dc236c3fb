package plugin

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeLength parses a "timelength" setting value, the original's
// compact duration notation (`libs/utils`, e.g. "1d2h3m4s" or a bare
// "90s"), into a time.Duration. Units: d(ays), h(ours), m(inutes),
// s(econds); a bare integer is seconds.
func ParseTimeLength(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timelength")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	var total time.Duration
	var num strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num.WriteRune(r)
		case r == 'd' || r == 'h' || r == 'm' || r == 's':
			if num.Len() == 0 {
				return 0, fmt.Errorf("invalid timelength %q: unit %q with no preceding digits", s, r)
			}
			n, err := strconv.Atoi(num.String())
			if err != nil {
				return 0, fmt.Errorf("invalid timelength %q: %w", s, err)
			}
			switch r {
			case 'd':
				total += time.Duration(n) * 24 * time.Hour
			case 'h':
				total += time.Duration(n) * time.Hour
			case 'm':
				total += time.Duration(n) * time.Minute
			case 's':
				total += time.Duration(n) * time.Second
			}
			num.Reset()
		default:
			return 0, fmt.Errorf("invalid timelength %q: unexpected character %q", s, r)
		}
	}
	if num.Len() > 0 {
		return 0, fmt.Errorf("invalid timelength %q: trailing digits with no unit", s)
	}
	return total, nil
}
