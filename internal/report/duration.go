package report

import (
	"math"
	"strconv"
	"strings"
)

// DurationFormatter renders a millisecond count for display.
type DurationFormatter interface {
	FormatMillis(ms float64) string
}

// FormatterFunc adapts a plain function to DurationFormatter.
type FormatterFunc func(ms float64) string

// FormatMillis calls f(ms).
func (f FormatterFunc) FormatMillis(ms float64) string { return f(ms) }

// PrettyDuration writes compact durations such as "350ms", "1.2s" or "1h 2m 3.4s".
// Units are years, days, hours and minutes, then seconds with one floored
// decimal. Values under one second are printed as whole milliseconds.
type PrettyDuration struct{}

// FormatMillis implements DurationFormatter.
func (PrettyDuration) FormatMillis(ms float64) string {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return "0ms"
	}
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}

	var parts []string
	add := func(value float64, unit, text string) {
		if value == 0 {
			return
		}
		if text == "" {
			text = strconv.FormatFloat(value, 'f', -1, 64)
		}
		parts = append(parts, text+unit)
	}

	days := math.Trunc(ms / 86400000)
	add(math.Trunc(days/365), "y", "")
	add(math.Mod(days, 365), "d", "")
	add(math.Mod(math.Trunc(ms/3600000), 24), "h", "")
	add(math.Mod(math.Trunc(ms/60000), 60), "m", "")

	if ms < 1000 {
		rounded := math.Ceil(ms)
		if ms >= 1 {
			rounded = math.Round(ms)
		}
		add(rounded, "ms", "")
	} else {
		text := floorDecimal(math.Mod(ms/1000, 60))
		value, _ := strconv.ParseFloat(text, 64)
		add(value, "s", text)
	}

	if len(parts) == 0 {
		return sign + "0ms"
	}
	return sign + strings.Join(parts, " ")
}

// floorDecimal floors v to one decimal place and drops a trailing ".0".
func floorDecimal(v float64) string {
	floored := math.Floor(v*10+1e-7) / 10
	return strings.TrimSuffix(strconv.FormatFloat(floored, 'f', 1, 64), ".0")
}
