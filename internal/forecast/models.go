package forecast

import (
	"fmt"
	"strconv"
	"strings"
)

// Reading is a single forecast temperature in degrees Celsius.
type Reading float64

// Series is an ordered run of readings taken from one forecast document,
// in document order.
type Series []Reading

// Float64s returns the series as plain floats, e.g. for charting.
func (s Series) Float64s() []float64 {
	out := make([]float64, len(s))
	for i, r := range s {
		out[i] = float64(r)
	}
	return out
}

// Clone returns an independent copy of the series.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// String joins the readings with "; " using two decimals.
func (s Series) String() string {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = strconv.FormatFloat(float64(r), 'f', 2, 64)
	}
	return strings.Join(parts, "; ")
}

// Headline formats a reading the way the display shows the current temperature.
func (r Reading) Headline() string {
	return fmt.Sprintf("%.1f°C", float64(r))
}
