package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"CandleSense/internal/domain/service"
	applogger "CandleSense/pkg/logger"
)

// ErrEnrichmentDisabled is returned by Analyze when no service is configured.
var ErrEnrichmentDisabled = errors.New("enrichment disabled")

type generateRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// EnrichmentClient asks the external analysis service for a second opinion. Calls are
// rate limited and pass through a circuit breaker so a dead service is skipped quickly.
type EnrichmentClient struct {
	*HTTPServiceBase
	cfg      EnrichmentConfig
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	log      *applogger.Logger
	requests atomic.Int64
}

func NewEnrichmentClient(cfg EnrichmentConfig, log *applogger.Logger) (*EnrichmentClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = applogger.OrNop(log)
	st := gobreaker.Settings{Name: "enrichment"}
	st.Interval = 60 * time.Second
	st.Timeout = cfg.BreakerTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= cfg.BreakerFailures
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn("enrichment breaker state changed",
			applogger.String("breaker", name),
			applogger.String("from", from.String()),
			applogger.String("to", to.String()))
	}
	var headers map[string]string
	if cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	return &EnrichmentClient{
		HTTPServiceBase: NewHTTPServiceBase(cfg.BaseURL, cfg.Timeout, headers),
		cfg:             cfg,
		breaker:         gobreaker.NewCircuitBreaker(st),
		limiter:         rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		log:             log,
	}, nil
}

func (c *EnrichmentClient) Enabled() bool { return c.cfg.Enabled && c.cfg.BaseURL != "" }

// Requests counts calls that reached the service.
func (c *EnrichmentClient) Requests() int64 { return c.requests.Load() }

// BreakerState is the current circuit state name.
func (c *EnrichmentClient) BreakerState() string { return c.breaker.State().String() }

// Analyze sends the request context and returns Parsed when the answer holds a judgment,
// Unparsed otherwise. Transport failures come back as errors for the caller to drop.
func (c *EnrichmentClient) Analyze(ctx context.Context, req service.EnrichmentRequest) (service.EnrichmentResult, error) {
	if !c.Enabled() {
		return nil, ErrEnrichmentDisabled
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("enrichment rate limit: %w", err)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var resp generateResponse
		c.requests.Add(1)
		err := c.PostJSONWithRetry(ctx, c.cfg.Path, generateRequest{Model: c.cfg.Model, Prompt: BuildPrompt(req)}, &resp, c.cfg.Attempts)
		if err != nil {
			return nil, err
		}
		return resp.Text, nil
	})
	if err != nil {
		return nil, fmt.Errorf("enrichment: %w", err)
	}
	res := ParseJudgment(out.(string))
	if _, ok := res.(service.Unparsed); ok {
		c.log.Warn("enrichment answer held no judgment", applogger.String("symbol", req.Symbol))
	}
	return res, nil
}

var _ service.Enricher = (*EnrichmentClient)(nil)
