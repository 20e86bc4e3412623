package binance

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatVolume renders a quote volume as a short label: 1.2B, 350.0M, 12.5K
// or a plain integer below one thousand.
func FormatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// ParseVolume is the inverse of FormatVolume (up to its rounding).
func ParseVolume(s string) (float64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty volume")
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'B':
		mult = 1e9
	case 'M':
		mult = 1e6
	case 'K':
		mult = 1e3
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse volume %q: %w", s, err)
	}
	return v * mult, nil
}
