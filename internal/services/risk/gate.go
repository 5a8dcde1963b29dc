package risk

import (
	"fmt"
	"time"

	"CandleSense/internal/domain/models"
)

type Config struct {
	MaxTradesPerDay      int     `yaml:"max_trades_per_day" default:"20" validate:"gte=1"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" default:"3" validate:"gte=1"`
	MinConfidence        float64 `yaml:"min_confidence" default:"0.65" validate:"gte=0,lte=1"`
	MinWinRate           float64 `yaml:"min_win_rate" default:"0.5" validate:"gte=0,lte=1"`
	// MinWinRateSamples is how many validated predictions must exist before the win rate counts.
	MinWinRateSamples int           `yaml:"min_win_rate_samples" default:"50" validate:"gte=1"`
	CooldownAfterLoss time.Duration `yaml:"cooldown_after_loss" default:"5m"`
	// WinRateWindow is the number of most recent validated predictions the win rate covers.
	WinRateWindow int `yaml:"win_rate_window" default:"50" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{
		MaxTradesPerDay:      20,
		MaxConsecutiveLosses: 3,
		MinConfidence:        0.65,
		MinWinRate:           0.5,
		MinWinRateSamples:    50,
		CooldownAfterLoss:    5 * time.Minute,
		WinRateWindow:        50,
	}
}

func (c Config) Validate() error {
	if c.MaxTradesPerDay < 1 || c.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("risk: max_trades_per_day and max_consecutive_losses must be >= 1")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 || c.MinWinRate < 0 || c.MinWinRate > 1 {
		return fmt.Errorf("risk: min_confidence and min_win_rate must be in [0,1]")
	}
	if c.MinWinRateSamples < 1 || c.WinRateWindow < 1 {
		return fmt.Errorf("risk: win rate sample sizes must be >= 1")
	}
	if c.CooldownAfterLoss < 0 {
		return fmt.Errorf("risk: cooldown_after_loss must not be negative")
	}
	return nil
}

// Check names.
const (
	CheckDailyTrades       = "daily_trades"
	CheckConsecutiveLosses = "consecutive_losses"
	CheckConfidence        = "confidence"
	CheckWinRate           = "win_rate"
	CheckCooldown          = "cooldown"
)

// Check is one evaluated rule.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Decision carries every check, passed or not, in a fixed order.
type Decision struct {
	Allowed bool      `json:"allowed"`
	Checks  []Check   `json:"checks"`
	At      time.Time `json:"at"`
}

// Failed lists the names of the checks that did not pass.
func (d Decision) Failed() []string {
	var out []string
	for _, c := range d.Checks {
		if !c.Passed {
			out = append(out, c.Name)
		}
	}
	return out
}

// Gate is the final accept/reject step in front of acting on a prediction.
type Gate struct {
	cfg Config
}

func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

func (g *Gate) Config() Config { return g.cfg }

// Evaluate runs all five checks without short-circuiting.
func (g *Gate) Evaluate(confidence float64, st models.TradeStats, now time.Time) Decision {
	checks := []Check{
		g.dailyTrades(st),
		g.consecutiveLosses(st),
		g.confidence(confidence),
		g.winRate(st),
		g.cooldown(st, now),
	}
	allowed := true
	for _, c := range checks {
		allowed = allowed && c.Passed
	}
	return Decision{Allowed: allowed, Checks: checks, At: now}
}

func (g *Gate) dailyTrades(st models.TradeStats) Check {
	c := Check{Name: CheckDailyTrades, Passed: st.TradesToday < g.cfg.MaxTradesPerDay}
	if !c.Passed {
		c.Reason = fmt.Sprintf("%d trades today, limit %d", st.TradesToday, g.cfg.MaxTradesPerDay)
	}
	return c
}

func (g *Gate) consecutiveLosses(st models.TradeStats) Check {
	c := Check{Name: CheckConsecutiveLosses, Passed: st.ConsecutiveLosses < g.cfg.MaxConsecutiveLosses}
	if !c.Passed {
		c.Reason = fmt.Sprintf("%d consecutive losses, limit %d", st.ConsecutiveLosses, g.cfg.MaxConsecutiveLosses)
	}
	return c
}

func (g *Gate) confidence(conf float64) Check {
	c := Check{Name: CheckConfidence, Passed: conf >= g.cfg.MinConfidence}
	if !c.Passed {
		c.Reason = fmt.Sprintf("confidence %.3f below %.3f", conf, g.cfg.MinConfidence)
	}
	return c
}

// winRate passes while there are too few samples to judge.
func (g *Gate) winRate(st models.TradeStats) Check {
	c := Check{Name: CheckWinRate, Passed: true}
	if st.RecentSamples >= g.cfg.MinWinRateSamples && st.RecentWinRate < g.cfg.MinWinRate {
		c.Passed = false
		c.Reason = fmt.Sprintf("win rate %.3f over %d predictions below %.3f", st.RecentWinRate, st.RecentSamples, g.cfg.MinWinRate)
	}
	return c
}

func (g *Gate) cooldown(st models.TradeStats, now time.Time) Check {
	c := Check{Name: CheckCooldown, Passed: true}
	if st.LastLossAt.IsZero() {
		return c
	}
	if elapsed := now.Sub(st.LastLossAt); elapsed < g.cfg.CooldownAfterLoss {
		c.Passed = false
		c.Reason = fmt.Sprintf("last loss %s ago, cooldown %s", elapsed.Round(time.Second), g.cfg.CooldownAfterLoss)
	}
	return c
}
