package clock

import "time"

// Rule describes a region's UTC offsets, in seconds, for standard and
// daylight saving time. Daylight saving runs from the last Sunday of March
// to the last Sunday of October.
type Rule struct {
	StandardOffset int
	DaylightOffset int
}

// DefaultRule is Finnish time: UTC+2, UTC+3 in summer.
func DefaultRule() Rule {
	return Rule{StandardOffset: 7200, DaylightOffset: 10800}
}

// Offset returns the offset in seconds the rule gives for the date.
func (r Rule) Offset(month time.Month, day int, weekday time.Weekday) (int, bool) {
	if IsDaylightSaving(month, day, weekday) {
		return r.DaylightOffset, true
	}
	return r.StandardOffset, false
}

// IsDaylightSaving reports whether daylight saving applies on the given
// date. The switch days are found with the congruence
// day >= 31 - (5*weekday+6)/8, evaluated only in March and October.
func IsDaylightSaving(month time.Month, day int, weekday time.Weekday) bool {
	m := int(month) - 1 // March = 2, October = 9
	boundary := 31 - (5*int(weekday)+6)/8

	switch {
	case m > 2 && m < 9:
		return true
	case m == 2:
		return day >= boundary
	case m == 9:
		return day < boundary
	default:
		return false
	}
}
