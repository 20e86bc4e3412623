// Package detector finds the most recent smart-money order block in a candle
// series. Detection is pure: no I/O, no shared state, safe for concurrent use.
package detector

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"OBScan/internal/domain/models"
)

// WindowSize is the number of candles examined per pattern window:
// C0 structure, C1 gap, C2 zone, C3 impulse, C4 context.
const WindowSize = 5

// Config holds the detection thresholds and rule toggles.
type Config struct {
	ImpulsiveMinBodyRatio   float64 `yaml:"min_body_ratio" json:"minBodyRatio"`
	ImpulsiveMinPriceChange float64 `yaml:"min_price_change" json:"minPriceChange"`
	SignificantVolumeFactor float64 `yaml:"volume_factor" json:"volumeFactor"`
	RequireBOS              bool    `yaml:"require_bos" json:"requireBOS"`
	RequireC3ClosePastC2    bool    `yaml:"require_c3_close_past_c2" json:"requireC3ClosePastC2"`
	RequireFVG              bool    `yaml:"require_fvg" json:"requireFVG"`
	MinFvgDepthRatio        float64 `yaml:"min_fvg_depth_ratio" json:"minFvgDepthRatio"`
	RequireUnmitigated      bool    `yaml:"require_unmitigated" json:"requireUnmitigated"`
}

// DefaultConfig returns the thresholds used for interactive scans.
func DefaultConfig() Config {
	return Config{
		ImpulsiveMinBodyRatio:   0.15,
		ImpulsiveMinPriceChange: 0.0002,
		SignificantVolumeFactor: 0.5,
		RequireBOS:              true,
		RequireC3ClosePastC2:    true,
		RequireFVG:              true,
		MinFvgDepthRatio:        0.0,
		RequireUnmitigated:      true,
	}
}

// ScheduledConfig returns the stricter thresholds of the background scan.
func ScheduledConfig() Config {
	cfg := DefaultConfig()
	cfg.ImpulsiveMinPriceChange = 0.0005
	cfg.SignificantVolumeFactor = 0.6
	cfg.MinFvgDepthRatio = 0.05
	return cfg
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the wall clock used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// Detector runs order block detection. The zero value is not usable; build
// one with New.
type Detector struct {
	now func() time.Time
}

func New(opts ...Option) *Detector {
	d := &Detector{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var std = New()

// Detect runs the package-level detector with the system clock.
func Detect(snapshot models.Instrument, candles []models.Candle, timeframe string, cfg Config) models.DetectionResult {
	return std.Detect(snapshot, candles, timeframe, cfg)
}

// Detect scans candles (oldest first) backward from the newest window and
// returns the first bullish or bearish order block it finds. Insufficient or
// degenerate data yields a ZoneNone result, never an error.
func (d *Detector) Detect(snapshot models.Instrument, candles []models.Candle, timeframe string, cfg Config) models.DetectionResult {
	res := d.none(snapshot, timeframe)

	if len(candles) < WindowSize {
		res.Details = fmt.Sprintf("Not enough candlestick data for order block analysis (need at least %d candles).", WindowSize)
		return res
	}

	median := MedianVolume(candles)

	for i := len(candles) - 1; i >= WindowSize-1; i-- {
		w := window{
			c0: candles[i-4],
			c1: candles[i-3],
			c2: candles[i-2],
			c3: candles[i-1],
			c4: candles[i],
		}
		if w.degenerate() {
			continue
		}

		if ok, unmitigated := w.bullish(candles, i-1, median, cfg); ok {
			return d.found(snapshot, timeframe, models.ZoneBullish, w, unmitigated, cfg)
		}
		if ok, unmitigated := w.bearish(candles, i-1, median, cfg); ok {
			return d.found(snapshot, timeframe, models.ZoneBearish, w, unmitigated, cfg)
		}
	}

	return res
}

type window struct {
	c0, c1, c2, c3, c4 models.Candle
}

// degenerate reports a zero-volume or zero-range candle among C0..C3. Such a
// window would divide by zero in the ratio checks.
func (w window) degenerate() bool {
	for _, c := range [...]models.Candle{w.c0, w.c1, w.c2, w.c3} {
		if c.Volume == 0 || c.Range() == 0 {
			return true
		}
	}
	return false
}

func (w window) bullish(candles []models.Candle, impulseIdx int, median float64, cfg Config) (bool, bool) {
	if !w.c2.IsBearish() || !w.c3.IsBullish() {
		return false, false
	}
	if cfg.RequireFVG {
		gap := w.c3.Low - w.c1.High
		if gap <= 0 || gap/w.c3.Range() < cfg.MinFvgDepthRatio {
			return false, false
		}
	}
	if cfg.RequireBOS {
		if w.c3.Close <= max(w.c0.High, w.c1.High, w.c2.High) {
			return false, false
		}
	}
	if !IsImpulsive(w.c3, cfg.ImpulsiveMinBodyRatio, cfg.ImpulsiveMinPriceChange, true) {
		return false, false
	}
	if cfg.RequireC3ClosePastC2 && w.c3.Close < w.c2.Close {
		return false, false
	}
	if !significantVolume(w.c2, median, cfg.SignificantVolumeFactor) {
		return false, false
	}
	unmitigated := IsUnmitigated(candles, impulseIdx, w.c2.Open, w.c2.Low)
	if cfg.RequireUnmitigated && !unmitigated {
		return false, false
	}
	return true, unmitigated
}

func (w window) bearish(candles []models.Candle, impulseIdx int, median float64, cfg Config) (bool, bool) {
	if !w.c2.IsBullish() || !w.c3.IsBearish() {
		return false, false
	}
	if cfg.RequireFVG {
		gap := w.c1.Low - w.c3.High
		if gap <= 0 || gap/w.c3.Range() < cfg.MinFvgDepthRatio {
			return false, false
		}
	}
	if cfg.RequireBOS {
		if w.c3.Close >= min(w.c0.Low, w.c1.Low, w.c2.Low) {
			return false, false
		}
	}
	if !IsImpulsive(w.c3, cfg.ImpulsiveMinBodyRatio, cfg.ImpulsiveMinPriceChange, false) {
		return false, false
	}
	if cfg.RequireC3ClosePastC2 && w.c3.Close > w.c2.Close {
		return false, false
	}
	if !significantVolume(w.c2, median, cfg.SignificantVolumeFactor) {
		return false, false
	}
	unmitigated := IsUnmitigated(candles, impulseIdx, w.c2.Open, w.c2.High)
	if cfg.RequireUnmitigated && !unmitigated {
		return false, false
	}
	return true, unmitigated
}

func significantVolume(c models.Candle, median, factor float64) bool {
	return median > 0 && c.Volume > median*factor
}

// IsImpulsive reports whether c moved strongly in the given direction: the
// relative price change and the body/range ratio must both exceed their
// thresholds. A non-positive open never qualifies.
func IsImpulsive(c models.Candle, minBodyRatio, minPriceChange float64, up bool) bool {
	if c.Open <= 0 {
		return false
	}
	change := (c.Close - c.Open) / c.Open
	if !up {
		change = (c.Open - c.Close) / c.Open
	}
	bodyRatio := 0.0
	if r := c.Range(); r > 0 {
		bodyRatio = c.Body() / r
	}
	return change > minPriceChange && bodyRatio > minBodyRatio
}

// IsUnmitigated reports whether no candle after impulseIdx trades into the
// zone spanned by a and b (in either order).
func IsUnmitigated(candles []models.Candle, impulseIdx int, a, b float64) bool {
	lo, hi := min(a, b), max(a, b)
	for k := impulseIdx + 1; k < len(candles); k++ {
		if candles[k].Low <= hi && candles[k].High >= lo {
			return false
		}
	}
	return true
}

// MedianVolume is the median of all candle volumes; 0 for an empty slice.
func MedianVolume(candles []models.Candle) float64 {
	n := len(candles)
	if n == 0 {
		return 0
	}
	vols := make([]float64, n)
	for i, c := range candles {
		vols[i] = c.Volume
	}
	sort.Float64s(vols)
	if n%2 == 1 {
		return vols[n/2]
	}
	return (vols[n/2-1] + vols[n/2]) / 2
}

func (d *Detector) none(snapshot models.Instrument, timeframe string) models.DetectionResult {
	return models.DetectionResult{
		Instrument: snapshot,
		ZoneType:   models.ZoneNone,
		Timestamp:  d.now(),
		Timeframe:  timeframe,
		Details:    fmt.Sprintf("No significant %s order block detected based on current SMC rules.", strings.ToUpper(timeframe)),
	}
}

func (d *Detector) found(snapshot models.Instrument, timeframe string, zone models.ZoneType, w window, unmitigated bool, cfg Config) models.DetectionResult {
	c2 := w.c2
	price, end := c2.Low, c2.Low
	pattern := "Last bearish candle (C2) before strong bullish move (C3)"
	if zone == models.ZoneBearish {
		price, end = c2.High, c2.High
		pattern = "Last bullish candle (C2) before strong bearish move (C3)"
	}

	state := "Mitigated."
	if unmitigated {
		state = "Unmitigated."
	}

	details := fmt.Sprintf(
		"Potential %s order block detected near $%.2f. OB Zone: $%.4f - $%.4f. %s with %s FVG and %s BOS. %s Current price: $%.2f",
		strings.ToUpper(timeframe), price, c2.Open, end,
		pattern, toggle(cfg.RequireFVG), toggle(cfg.RequireBOS),
		state, snapshot.CurrentPrice,
	)

	return models.DetectionResult{
		Instrument:     snapshot,
		ZoneType:       zone,
		ZonePrice:      ptr(price),
		ZoneOpen:       ptr(c2.Open),
		ZoneHigh:       ptr(c2.High),
		ZoneLow:        ptr(c2.Low),
		ZoneClose:      ptr(c2.Close),
		ZoneRangeStart: ptr(c2.Open),
		ZoneRangeEnd:   ptr(end),
		Timestamp:      d.now(),
		Timeframe:      timeframe,
		Details:        details,
		CandleTime:     w.c4.OpenTime,
	}
}

func toggle(required bool) string {
	if required {
		return "required"
	}
	return "optional"
}

func ptr(v float64) *float64 { return &v }
