package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	cfg := Config{
		Host:         "ch",
		Port:         9000,
		Database:     "candlesense",
		User:         "u",
		Password:     "p",
		MaxOpenConns: 10,
		DialTimeout:  5 * time.Second,
		MaxExecTime:  time.Minute,
		AsyncInsert:  true,
		Compress:     true,
	}
	opts := options(cfg)
	assert.Equal(t, []string{"ch:9000"}, opts.Addr)
	assert.Equal(t, clickhouse.Native, opts.Protocol)
	assert.Equal(t, "candlesense", opts.Auth.Database)
	assert.Equal(t, "u", opts.Auth.Username)
	assert.Equal(t, 60, opts.Settings["max_execution_time"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.NotContains(t, opts.Settings, "wait_for_async_insert")
	require.NotNil(t, opts.Compression)
	assert.Equal(t, clickhouse.CompressionLZ4, opts.Compression.Method)

	cfg.UseHTTP = true
	cfg.Compress = false
	cfg.MaxExecTime = 0
	cfg.AsyncInsert = false
	opts = options(cfg)
	assert.Equal(t, clickhouse.HTTP, opts.Protocol)
	assert.Nil(t, opts.Compression)
	assert.Empty(t, opts.Settings)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Host: "ch", Database: "db", MaxOpenConns: 2, MaxIdleConns: 5}
	assert.Error(t, cfg.Validate())
	cfg.MaxIdleConns = 1
	assert.NoError(t, cfg.Validate())
	cfg.Host = ""
	assert.Error(t, cfg.Validate())
}
