package clickhouse

import (
	"fmt"
	"time"
)

// Config is the yaml form of the connection settings.
type Config struct {
	Host            string        `yaml:"host" default:"localhost"`
	Port            int           `yaml:"port" default:"9000" validate:"gte=1,lte=65535"`
	Database        string        `yaml:"database" default:"candlesense" validate:"required"`
	User            string        `yaml:"user" default:"default"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	DialTimeout     time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	UseHTTP         bool          `yaml:"use_http"`
	Compress        bool          `yaml:"compress" default:"true"`
	// AsyncInsert lets the server buffer the small per-candle inserts.
	AsyncInsert  bool          `yaml:"async_insert"`
	WaitForAsync bool          `yaml:"wait_for_async_insert"`
	MaxExecTime  time.Duration `yaml:"max_execution_time" default:"60s"`
}

// Addr is host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("clickhouse: host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("clickhouse: database is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("clickhouse: max_idle_conns exceeds max_open_conns")
	}
	return nil
}
