package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	unit     = 1024
	prefixes = "KMGTPE"
)

// FormatBytes renders a byte count for display: values below 1024 as "<n> B",
// larger values as "<v> <prefix>B" with one fractional digit, where the prefix
// is picked by floor(log1024(n)).
func FormatBytes(n uint64) string {
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	exp := 0
	div := uint64(1)
	for v := n; v >= unit; v /= unit {
		exp++
		div *= unit
	}

	value := float64(n) / float64(div)
	// Round half up to one decimal so 1.25 renders as 1.3
	value = math.Floor(value*10+0.5) / 10
	return fmt.Sprintf("%.1f %cB", value, prefixes[exp-1])
}

// ParseBytes converts a string produced by FormatBytes back into a byte count.
// The unit is case-insensitive and the space before it is optional.
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	upper := strings.ToUpper(s)
	if !strings.HasSuffix(upper, "B") {
		return 0, fmt.Errorf("invalid size %q: missing B suffix", s)
	}
	body := strings.TrimSpace(upper[:len(upper)-1])

	exp := 0
	if body != "" {
		if idx := strings.IndexByte(prefixes, body[len(body)-1]); idx >= 0 {
			exp = idx + 1
			body = strings.TrimSpace(body[:len(body)-1])
		}
	}

	if exp == 0 {
		n, err := strconv.ParseUint(body, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}
		return n, nil
	}

	value, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	bytes := math.Round(value * math.Pow(unit, float64(exp)))
	if bytes >= math.MaxUint64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return uint64(bytes), nil
}

// ConvertBytesToHumanReadable formats a signed byte count, as used in log lines.
func ConvertBytesToHumanReadable(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return FormatBytes(uint64(n))
}
