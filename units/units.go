package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrClockFormat = errors.New("invalid clock format")

func MillimetersToMeters(mm float64) float64 {
	return mm / 1000
}

func MetersPerSecondToKmh(speed float64) float64 {
	return speed * 3.6
}

// PaceSecondsPerKm converts a speed to a runner's pace. Zero or negative speed has no pace and yields 0.
func PaceSecondsPerKm(speed float64) float64 {
	if speed <= 0 {
		return 0
	}
	return 1000 / speed
}

// ParseClock accepts "h:m:s.ms", "m:s.ms" or plain seconds and returns seconds.
func ParseClock(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) > 3 || parts[0] == "" {
		return 0, fmt.Errorf("%w: %q", ErrClockFormat, value)
	}
	var total float64
	for i, part := range parts {
		var n float64
		var err error
		if i == len(parts)-1 {
			n, err = strconv.ParseFloat(part, 64)
		} else {
			var whole int
			whole, err = strconv.Atoi(part)
			n = float64(whole)
		}
		if err != nil || !(n >= 0) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%w: %q", ErrClockFormat, value)
		}
		total = total*60 + n
	}
	return total, nil
}

// FormatClock renders seconds as "1h 2m 3s", dropping leading zero units.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(max(seconds, 0))
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// Duration decodes from "200ms"-style strings or from a number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		parsed, err := time.ParseDuration(unquoted)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", raw)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

// Clock is a number of seconds that also decodes from ParseClock strings such as "1:30".
type Clock float64

func (c *Clock) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		seconds, err := ParseClock(unquoted)
		if err != nil {
			return err
		}
		*c = Clock(seconds)
		return nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(seconds >= 0) || math.IsInf(seconds, 0) {
		return fmt.Errorf("%w: %s", ErrClockFormat, raw)
	}
	*c = Clock(seconds)
	return nil
}
