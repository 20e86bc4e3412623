package models

import "time"

type ZoneType string

const (
	ZoneNone    ZoneType = "None"
	ZoneBullish ZoneType = "BullishOB"
	ZoneBearish ZoneType = "BearishOB"
)

// DetectionResult is the outcome of one detector run for one instrument.
// Zone fields are nil unless ZoneType is BullishOB or BearishOB.
type DetectionResult struct {
	Instrument

	ZoneType       ZoneType  `json:"zoneType"`
	ZonePrice      *float64  `json:"zonePrice,omitempty"`
	ZoneOpen       *float64  `json:"zoneOpen,omitempty"`
	ZoneHigh       *float64  `json:"zoneHigh,omitempty"`
	ZoneLow        *float64  `json:"zoneLow,omitempty"`
	ZoneClose      *float64  `json:"zoneClose,omitempty"`
	ZoneRangeStart *float64  `json:"zoneRangeStart,omitempty"`
	ZoneRangeEnd   *float64  `json:"zoneRangeEnd,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Timeframe      string    `json:"timeframe"`
	Details        string    `json:"details"`
	CandleTime     int64     `json:"candleTime,omitempty"`
}

func (r DetectionResult) Found() bool { return r.ZoneType != ZoneNone && r.ZoneType != "" }

// ScanReport summarises one scan run over many instruments. Results keep the
// ranking order of the instrument list.
type ScanReport struct {
	RunID      string            `json:"runId"`
	Timeframe  string            `json:"timeframe"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Scanned    int               `json:"scanned"`
	Detected   int               `json:"detected"`
	Results    []DetectionResult `json:"results"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// Duration of the run.
func (r *ScanReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
