package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatTime renders seconds as an SRT timestamp, HH:MM:SS,mmm. Fractional
// milliseconds are truncated, not rounded, so a formatted value never reads
// later than the real one.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	millis := int64((seconds - float64(total)) * 1000.0)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTime converts an SRT timestamp back to seconds.
func ParseTime(value string) (float64, error) {
	trimmed := strings.TrimSpace(value)
	parts := strings.Split(trimmed, ",")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	clock := strings.Split(parts[0], ":")
	if len(clock) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, err := strconv.Atoi(clock[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q", value)
	}
	minutes, err := strconv.Atoi(clock[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q", value)
	}
	seconds, err := strconv.Atoi(clock[2])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q", value)
	}
	millis, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid milliseconds in %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000.0, nil
}
