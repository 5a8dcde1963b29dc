package models

// Requests for the engine HTTP and websocket endpoints. Transport tags only; no behaviour.

type CandleDTO struct {
	Timestamp int64   `json:"timestamp" validate:"required,gt=0"`
	Open      float64 `json:"open" validate:"gte=0"`
	High      float64 `json:"high" validate:"gte=0"`
	Low       float64 `json:"low" validate:"gte=0"`
	Close     float64 `json:"close" validate:"gte=0"`
	Volume    float64 `json:"volume" validate:"gte=0"`
}

// ToCandle converts the wire form; timestamps may be unix seconds or milliseconds.
func (d CandleDTO) ToCandle(symbol string) Candle {
	return Candle{
		Timestamp: UnixMillisToTime(d.Timestamp),
		Symbol:    symbol,
		Open:      d.Open,
		High:      d.High,
		Low:       d.Low,
		Close:     d.Close,
		Volume:    d.Volume,
	}
}

// CandlesFromDTO converts a batch.
func CandlesFromDTO(symbol string, in []CandleDTO) []Candle {
	out := make([]Candle, 0, len(in))
	for _, d := range in {
		out = append(out, d.ToCandle(symbol))
	}
	return out
}

type IngestCandlesRequest struct {
	Symbol   string      `json:"symbol" default:"default" validate:"required,max=64"`
	Platform string      `json:"platform" default:"unknown"`
	Candles  []CandleDTO `json:"candles" validate:"required,min=1,max=5000,dive"`
}

type PredictRequest struct {
	Symbol  string      `json:"symbol" default:"default" validate:"required,max=64"`
	Window  int         `json:"window" default:"50" validate:"gte=20,lte=500"`
	Candles []CandleDTO `json:"candles" validate:"omitempty,max=5000,dive"`
}

type PerformanceRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"max=64"`
	Days   int    `query:"days" json:"days" default:"7" validate:"gte=1,lte=90"`
}

type PredictionIDRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

// CandleEvent is the message form of a candle on the candles topic.
type CandleEvent struct {
	Symbol string `json:"symbol" validate:"required,max=64"`
	CandleDTO
}

// CandleEventOf converts a candle to its message form with a millisecond timestamp.
func CandleEventOf(c Candle) CandleEvent {
	return CandleEvent{
		Symbol: c.Symbol,
		CandleDTO: CandleDTO{
			Timestamp: c.Timestamp.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		},
	}
}
