package models

// Candle is one OHLCV bar. OpenTime is epoch milliseconds.
type Candle struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Range is high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Body is the absolute open-to-close distance.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

func (c Candle) IsBullish() bool { return c.Close > c.Open }
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// KlineEvent is a streamed candle update. Closed marks the final update of
// the bar.
type KlineEvent struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Candle   Candle `json:"candle"`
	Closed   bool   `json:"closed"`
}
