package repository

import "strings"

// Timeframe is a Binance kline interval.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF2h  Timeframe = "2h"
	TF4h  Timeframe = "4h"
	TF6h  Timeframe = "6h"
	TF8h  Timeframe = "8h"
	TF12h Timeframe = "12h"
	TF1d  Timeframe = "1d"
	TF3d  Timeframe = "3d"
	TF1w  Timeframe = "1w"
	TF1M  Timeframe = "1M"
)

var timeframes = []Timeframe{TF1m, TF3m, TF5m, TF15m, TF30m, TF1h, TF2h, TF4h, TF6h, TF8h, TF12h, TF1d, TF3d, TF1w, TF1M}

// IsValidTimeframe returns true if tf is a supported interval.
func IsValidTimeframe(tf Timeframe) bool {
	for _, v := range timeframes {
		if v == tf {
			return true
		}
	}
	return false
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF4h }

// NormalizeTimeframe trims and validates s, falling back to the default.
// "1M" (month) is case sensitive; everything else is lower-cased.
func NormalizeTimeframe(s string) Timeframe {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTimeframe()
	}
	if tf := Timeframe(s); tf == TF1M {
		return tf
	}
	tf := Timeframe(strings.ToLower(s))
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Timeframes lists every supported interval.
func Timeframes() []Timeframe {
	out := make([]Timeframe, len(timeframes))
	copy(out, timeframes)
	return out
}
