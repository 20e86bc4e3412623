package models

// Instrument is a ranked market snapshot. Volume is the human label
// ("1.2B"); QuoteVolume keeps the raw figure used for ranking.
type Instrument struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	CurrentPrice float64 `json:"currentPrice"`
	Volume       string  `json:"volume"`
	QuoteVolume  float64 `json:"-"`
}
