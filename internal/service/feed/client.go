package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"CandleSense/internal/domain/models"
	drepo "CandleSense/internal/domain/repository"
	applogger "CandleSense/pkg/logger"
)

// Config for the upstream candle websocket.
type Config struct {
	Enabled        bool          `yaml:"enabled" default:"false"`
	URL            string        `yaml:"url" validate:"omitempty,url"`
	APIKey         string        `yaml:"api_key"`
	Symbols        []string      `yaml:"symbols"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	BufferSize     int           `yaml:"buffer_size" default:"1024" validate:"gte=1"`
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("feed: url is required when enabled")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("feed: symbols cannot be empty")
	}
	if c.PingInterval <= 0 || c.BufferSize < 1 {
		return fmt.Errorf("feed: ping_interval and buffer_size must be positive")
	}
	return nil
}

// Client implements CandleStream over a websocket that pushes closed candles.
type Client struct {
	cfg Config
	log *applogger.Logger

	mu        sync.Mutex // guards conn and serialises writes
	conn      *websocket.Conn
	connected atomic.Bool
	dropped   atomic.Int64
}

func New(cfg Config, log *applogger.Logger) drepo.CandleStream {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Client{cfg: cfg, log: applogger.OrNop(log).With(applogger.String("component", "feed"))}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("token", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("feed connected", applogger.String("host", u.Host))
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	if !c.connected.Load() {
		return fmt.Errorf("feed not connected")
	}
	for _, s := range c.cfg.Symbols {
		if err := c.write(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.log.Info("feed subscribed", applogger.String("symbol", s))
	}
	return nil
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("feed conn nil")
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) ping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
	}
}

// frame is either a single candle or a batch under "data".
type frame struct {
	Type string               `json:"type"`
	Data []models.CandleEvent `json:"data"`
	models.CandleEvent
}

// Decode extracts candles from one text frame. Non-candle frames yield nothing.
func Decode(b []byte) ([]models.Candle, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if f.Type != "candle" && f.Type != "candles" {
		return nil, nil
	}
	events := f.Data
	if len(events) == 0 && f.Symbol != "" {
		events = []models.CandleEvent{f.CandleEvent}
	}
	out := make([]models.Candle, 0, len(events))
	for _, e := range events {
		cd := e.ToCandle(e.Symbol)
		if cd.Symbol == "" || cd.Validate() != nil {
			continue
		}
		out = append(out, cd)
	}
	return out, nil
}

// Read streams candles and errors until ctx ends or the connection fails.
func (c *Client) Read(ctx context.Context) (<-chan models.Candle, <-chan error) {
	candles := make(chan models.Candle, c.cfg.BufferSize)
	errs := make(chan error, 1)

	readCtx, stop := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				c.ping()
			}
		}
	}()

	go func() {
		defer stop()
		defer close(candles)
		defer close(errs)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			errs <- fmt.Errorf("feed conn nil")
			return
		}
		for {
			if readCtx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			batch, err := Decode(b)
			if err != nil {
				continue
			}
			for _, cd := range batch {
				select {
				case candles <- cd:
				default:
					if n := c.dropped.Add(1); n%100 == 1 {
						c.log.Warn("feed buffer full, dropping candles", applogger.Int64("dropped", n))
					}
				}
			}
		}
	}()

	return candles, errs
}

// Reconnect closes, waits ReconnectDelay and connects again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool { return c.connected.Load() }
