package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	mid "CandleSense/internal/middleware"
	"CandleSense/internal/service/feed"
	"CandleSense/internal/services/analytics"
	"CandleSense/internal/services/ensemble"
	"CandleSense/internal/services/features"
	"CandleSense/internal/services/neural"
	"CandleSense/internal/services/patterns"
	"CandleSense/internal/services/risk"
	"CandleSense/internal/services/similarity"
	"CandleSense/internal/services/training"
	"CandleSense/internal/services/validation"
	"CandleSense/internal/usecase"
	"CandleSense/pkg/cache"
	pkgch "CandleSense/pkg/clickhouse"
	pkgkafka "CandleSense/pkg/kafka"
	applogger "CandleSense/pkg/logger"
	"CandleSense/pkg/queue"
	"CandleSense/pkg/util"
)

const (
	BackendMemory     = "memory"
	BackendClickHouse = "clickhouse"
	ModelStoreFile    = "file"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
		// SlowThreshold marks requests logged at warn level.
		SlowThreshold time.Duration `yaml:"slow_threshold" default:"1s"`
		// WebSocket messages per second accepted from one connection.
		WSRatePerSecond float64 `yaml:"ws_rate_per_second" default:"5" validate:"gt=0"`
		WSBurst         int     `yaml:"ws_burst" default:"10" validate:"gte=1"`
	} `yaml:"server"`

	Logging struct {
		applogger.Config `yaml:",inline"`
		// Collector aggregates error lines and ships them to Kafka.
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100" validate:"gte=1"`
		} `yaml:"collector"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Storage struct {
		Backend          string `yaml:"backend" default:"memory" validate:"oneof=memory clickhouse"`
		ModelStore       string `yaml:"model_store" default:"file" validate:"oneof=file clickhouse"`
		ModelPath        string `yaml:"model_path" default:"data/model.json"`
		MemoryMaxCandles int    `yaml:"memory_max_candles" default:"10000" validate:"gte=0"`
	} `yaml:"storage"`

	ClickHouse pkgch.Config `yaml:"clickhouse"`

	Redis struct {
		Enabled           bool `yaml:"enabled"`
		cache.RedisConfig `yaml:",inline"`
		// PatternScoreTTL bounds how long a cached pattern score is served.
		PatternScoreTTL time.Duration `yaml:"pattern_score_ttl" default:"10m"`
	} `yaml:"redis"`

	// Jobs is the Redis job queue; it only runs when redis is enabled.
	Jobs queue.Config `yaml:"jobs"`

	Kafka struct {
		Enabled          bool     `yaml:"enabled"`
		Brokers          []string `yaml:"brokers"`
		CandlesTopic     string   `yaml:"candles_topic" default:"candles"`
		PredictionsTopic string   `yaml:"predictions_topic" default:"predictions"`
		OutcomesTopic    string   `yaml:"outcomes_topic" default:"prediction-outcomes"`
		LogsTopic        string   `yaml:"logs_topic" default:"candlesense-logs"`
		RequiredAcks     int      `yaml:"required_acks" default:"-1"`
		Compression      string   `yaml:"compression" default:"snappy"`

		Producer pkgkafka.ProducerConfig `yaml:"producer"`

		Consumer struct {
			Enabled     bool          `yaml:"enabled"`
			GroupID     string        `yaml:"group_id" default:"candlesense"`
			StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
			Workers     int           `yaml:"workers" default:"4" validate:"gte=1"`
			BufferSize  int           `yaml:"buffer_size" default:"256" validate:"gte=1"`
			RetryMax    int           `yaml:"retry_max" default:"3" validate:"gte=0"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic" default:"candles-dlq"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	Feed       feed.Config                `yaml:"feed"`
	Pipeline   mid.Config                 `yaml:"pipeline"`
	Enrichment analytics.EnrichmentConfig `yaml:"enrichment"`

	Engine struct {
		Features     features.Config              `yaml:"features"`
		Patterns     patterns.Config              `yaml:"patterns"`
		Similarity   similarity.Config            `yaml:"similarity"`
		Model        neural.Config                `yaml:"model"`
		Ensemble     ensemble.Config              `yaml:"ensemble"`
		Validation   validation.Config            `yaml:"validation"`
		Training     training.Config              `yaml:"training"`
		Risk         risk.Config                  `yaml:"risk"`
		Manipulation analytics.ManipulationConfig `yaml:"manipulation"`
		Prediction   usecase.PredictionConfig     `yaml:"prediction"`
		Retention    usecase.RetentionConfig      `yaml:"retention"`
	} `yaml:"engine"`
}

// Default returns a complete configuration: each package's defaults first, then struct tags
// for everything those leave at zero.
func Default() (*Config, error) {
	c := &Config{}
	c.Redis.RedisConfig = cache.DefaultRedisConfig()
	c.Kafka.Producer = pkgkafka.DefaultProducerConfig()
	c.Jobs = queue.DefaultConfig()
	c.Pipeline = mid.DefaultConfig()
	c.Enrichment = analytics.DefaultEnrichmentConfig()
	c.Engine.Features = features.DefaultConfig()
	c.Engine.Patterns = patterns.DefaultConfig()
	c.Engine.Similarity = similarity.DefaultConfig()
	c.Engine.Model = neural.DefaultConfig()
	c.Engine.Ensemble = ensemble.DefaultConfig()
	c.Engine.Validation = validation.DefaultConfig()
	c.Engine.Training = training.DefaultConfig()
	c.Engine.Risk = risk.DefaultConfig()
	c.Engine.Manipulation = analytics.DefaultManipulationConfig()
	c.Engine.Prediction = usecase.DefaultPredictionConfig()
	c.Engine.Retention = usecase.DefaultRetentionConfig()
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return c, nil
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse overlays YAML bytes on the defaults. Keys absent from b keep their default.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if c.applyEnv(os.Getenv) {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) bool {
	changed := false
	set := func(key string, fn func(string)) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			fn(v)
			changed = true
		}
	}
	set("CANDLESENSE_ENV", func(v string) { c.Environment = v })
	set("LOG_LEVEL", func(v string) { c.Logging.Level = strings.ToLower(v) })
	set("STORAGE_BACKEND", func(v string) { c.Storage.Backend = strings.ToLower(v) })
	set("CLICKHOUSE_HOST", func(v string) { c.ClickHouse.Host = v })
	set("CLICKHOUSE_PASSWORD", func(v string) { c.ClickHouse.Password = v })
	set("REDIS_ADDR", func(v string) {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	})
	set("KAFKA_BROKERS", func(v string) {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	})
	set("FEED_API_KEY", func(v string) { c.Feed.APIKey = v })
	set("FEED_SYMBOLS", func(v string) { c.Feed.Symbols = util.SplitList(v) })
	set("ENRICHMENT_API_KEY", func(v string) { c.Enrichment.APIKey = v })
	return changed
}

var validate = validator.New()

// Validate checks struct tags and then each section's own rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Storage.ModelStore == BackendClickHouse && c.Storage.Backend != BackendClickHouse {
		return fmt.Errorf("storage.model_store clickhouse requires storage.backend clickhouse")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Logging.Collector.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("logging.collector requires kafka")
	}
	checks := []interface{ Validate() error }{
		c.Redis.RedisConfig,
		c.Jobs,
		c.Feed,
		c.Pipeline,
		c.Enrichment,
		c.Engine.Features,
		c.Engine.Patterns,
		c.Engine.Similarity,
		c.Engine.Model,
		c.Engine.Ensemble,
		c.Engine.Validation,
		c.Engine.Training,
		c.Engine.Risk,
		c.Engine.Manipulation,
		c.Engine.Prediction,
		c.Engine.Retention,
	}
	for _, v := range checks {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LearningLockTTL outlives the longest retrain so a crashed replica's lock still expires.
func (c *Config) LearningLockTTL() time.Duration {
	return c.Engine.Training.Timeout + time.Minute
}
