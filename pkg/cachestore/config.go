package cachestore

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultHost           = "localhost"
	DefaultPort           = 6379
	DefaultMaxConnections = 10
	DefaultPollInterval   = time.Second
	DefaultCloseTimeout   = 5 * time.Second
	DefaultScanCount      = 1024
)

// ExpireAccuracy is the slack the store may add on top of a key's TTL.
// https://redis.io/commands/expire#expire-accuracy
const ExpireAccuracy = time.Second

// Config holds the connection parameters and tuning knobs of a Client.
// The zero value is usable: every unset field falls back to its default.
type Config struct {
	// Host and Port locate the store. If empty or zero, they default to
	// DefaultHost and DefaultPort.
	Host string
	Port int `validate:"lte=65535"`

	// Password is sent on connect when non-empty.
	Password string

	// Prefix namespaces every key of this client. It must not contain the
	// scan glob metacharacters * ? [ ], since Clear matches Prefix + "*".
	// Pub/sub channel names are not prefixed.
	Prefix string `validate:"excludesall=*?[]"`

	// DB selects the store database index. Negative values fall back to 0.
	DB int

	// MaxConnections caps the driver's connection pool. If zero or negative,
	// defaults to DefaultMaxConnections.
	MaxConnections int

	// PollInterval bounds how long a listener waits for the next message
	// before rechecking its exit flag. If zero, defaults to
	// DefaultPollInterval.
	PollInterval time.Duration

	// CloseTimeout bounds the graceful phase of CloseSubscriptions for the
	// whole listener batch. If zero, defaults to DefaultCloseTimeout.
	CloseTimeout time.Duration

	// ScanCount is the SCAN page size used by Clear. If zero or negative,
	// defaults to DefaultScanCount.
	ScanCount int64

	// DisableFlushOnStop skips the graceful-exit drain of already-buffered
	// messages when a listener stops.
	DisableFlushOnStop bool
}

// LoadConfig reads client configuration from environment variables, falling
// back to defaults for anything unset or unparsable.
func LoadConfig() Config {
	return Config{
		Host:           envOrDefault("REDIS_HOST", DefaultHost),
		Port:           envIntOrDefault("REDIS_PORT", DefaultPort),
		Password:       os.Getenv("REDIS_PASSWORD"),
		Prefix:         os.Getenv("CACHE_PREFIX"),
		DB:             envIntOrDefault("REDIS_DB", 0),
		MaxConnections: envIntOrDefault("REDIS_MAX_CONNECTIONS", DefaultMaxConnections),
	}
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.DB < 0 {
		c.DB = 0
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.ScanCount <= 0 {
		c.ScanCount = DefaultScanCount
	}
	return c
}

func (c Config) validate() error {
	if err := getValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}
	return nil
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	validatorInstance *validator.Validate
	validatorMu       sync.Mutex
)

func getValidator() *validator.Validate {
	if validatorInstance == nil {
		validatorMu.Lock()
		defer validatorMu.Unlock()
		if validatorInstance == nil {
			validatorInstance = validator.New(validator.WithRequiredStructEnabled())
		}
	}
	return validatorInstance
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
