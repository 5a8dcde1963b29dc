package cache

import (
	"fmt"
	"time"
)

// RedisConfig holds Redis connection settings. It is embedded in the application config.
type RedisConfig struct {
	Addr         string        `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0,lte=15"`
	PoolSize     int           `yaml:"pool_size" default:"10" validate:"gte=1"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2" validate:"gte=0"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	// Prefix namespaces every key and lock. A trailing ":" is optional.
	Prefix string `yaml:"prefix" default:"candlesense"`
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
		DialTimeout:  5 * time.Second,
		Prefix:       "candlesense",
	}
}

func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis: addr is required")
	}
	if c.PoolSize < 1 || c.MinIdleConns < 0 || c.MinIdleConns > c.PoolSize {
		return fmt.Errorf("redis: need pool_size >= 1 and 0 <= min_idle_conns <= pool_size")
	}
	return nil
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryConfig)

type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// WithMemoryMaxSize caps entries; the least recently read entry is evicted first.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		if size > 0 {
			c.MaxSize = size
		}
	}
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		if interval > 0 {
			c.CleanupInterval = interval
		}
	}
}
