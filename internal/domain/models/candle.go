package models

import (
	"fmt"
	"math"
	"time"
)

// Candle is an immutable OHLC summary of one time bucket.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume,omitempty"`
}

// Range returns high-low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Body returns the absolute open-close distance.
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

func (c Candle) BodyTop() float64    { return math.Max(c.Open, c.Close) }
func (c Candle) BodyBottom() float64 { return math.Min(c.Open, c.Close) }

// UpperWick returns the distance from the body top to the high.
func (c Candle) UpperWick() float64 { return c.High - c.BodyTop() }

// LowerWick returns the distance from the body bottom to the low.
func (c Candle) LowerWick() float64 { return c.BodyBottom() - c.Low }

func (c Candle) IsBullish() bool { return c.Close > c.Open }
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Validate rejects candles that cannot describe a real price bucket.
func (c Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("candle timestamp is zero")
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("candle price invalid: %v", v)
		}
	}
	if c.High < c.Low {
		return fmt.Errorf("candle high %v below low %v", c.High, c.Low)
	}
	if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
		return fmt.Errorf("candle open/close outside high-low range")
	}
	return nil
}

// UnixMillisToTime accepts either unix seconds or milliseconds.
func UnixMillisToTime(ts int64) time.Time {
	if ts < 1e11 {
		return time.Unix(ts, 0).UTC()
	}
	return time.UnixMilli(ts).UTC()
}
