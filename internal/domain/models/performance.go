package models

import "time"

// Performance summarises recent validated predictions.
type Performance struct {
	Since   time.Time `json:"since"`
	Total   int       `json:"total"`
	Correct int       `json:"correct"`
	WinRate float64   `json:"win_rate"`
	Last10  string    `json:"last_10"`
}

// TradeStats is the rolling state the risk gate evaluates against.
type TradeStats struct {
	TradesToday       int       `json:"trades_today"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	RecentWinRate     float64   `json:"recent_win_rate"`
	RecentSamples     int       `json:"recent_samples"`
	LastLossAt        time.Time `json:"last_loss_at,omitempty"`
}

// StoreStats are whole-store counters.
type StoreStats struct {
	TotalCandles         int64   `json:"total_candles"`
	TotalPredictions     int64   `json:"total_predictions"`
	ValidatedPredictions int64   `json:"validated_predictions"`
	WinRate              float64 `json:"win_rate"`
}

// BuildPerformance folds validated predictions, newest first, into a Performance summary.
func BuildPerformance(since time.Time, newestFirst []Prediction) Performance {
	perf := Performance{Since: since}
	last := make([]byte, 0, 10)
	for _, p := range newestFirst {
		if !p.Validated {
			continue
		}
		if len(last) < 10 {
			if p.Correct() {
				last = append(last, 'W')
			} else {
				last = append(last, 'L')
			}
		}
		if p.Timestamp.Before(since) {
			continue
		}
		perf.Total++
		if p.Correct() {
			perf.Correct++
		}
	}
	if perf.Total > 0 {
		perf.WinRate = float64(perf.Correct) / float64(perf.Total)
	}
	perf.Last10 = string(last)
	return perf
}

// BuildTradeStats derives risk-gate inputs from predictions newest first.
// Every prediction in the slice counts as a taken trade.
func BuildTradeStats(now time.Time, newestFirst []Prediction, winRateWindow int) TradeStats {
	var st TradeStats
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	streakOpen := true
	for _, p := range newestFirst {
		if !p.Timestamp.Before(dayStart) && !p.Timestamp.After(now) {
			st.TradesToday++
		}
		if !p.Validated {
			continue
		}
		if streakOpen {
			if p.Correct() {
				streakOpen = false
			} else {
				st.ConsecutiveLosses++
			}
		}
		if !p.Correct() && p.ValidationTimestamp != nil && p.ValidationTimestamp.After(st.LastLossAt) {
			st.LastLossAt = *p.ValidationTimestamp
		}
		if winRateWindow <= 0 || st.RecentSamples < winRateWindow {
			st.RecentSamples++
			if p.Correct() {
				st.RecentWinRate++
			}
		}
	}
	if st.RecentSamples > 0 {
		st.RecentWinRate /= float64(st.RecentSamples)
	}
	return st
}
