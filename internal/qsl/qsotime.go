package qsl

import "time"

// dupWindow is the symmetric tolerance for duplicate-candidate matching.
// Two times exactly dupWindow apart still count as duplicates.
const dupWindow = 5 * time.Minute

// ParseTimeOn parses an ADIF time-of-day string (HHMM or HHMMSS).
// Four-digit values carry no seconds and are padded to HHMM00; anything
// else short of six digits is zero-padded on the left.
func ParseTimeOn(s string) (time.Time, bool) {
	switch {
	case len(s) == 4:
		s += "00"
	case len(s) > 6:
		return time.Time{}, false
	default:
		for len(s) < 6 {
			s = "0" + s
		}
	}
	t, err := time.Parse("150405", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WithinWindow reports whether two time-of-day strings lie within the
// 5-minute duplicate window of each other. Malformed strings never match.
func WithinWindow(a, b string) bool {
	ta, ok := ParseTimeOn(a)
	if !ok {
		return false
	}
	tb, ok := ParseTimeOn(b)
	if !ok {
		return false
	}
	d := ta.Sub(tb)
	if d < 0 {
		d = -d
	}
	return d <= dupWindow
}
