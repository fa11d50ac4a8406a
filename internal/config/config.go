// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
)

// Config represents the application configuration. Fields are loaded from
// the environment by reflecting over the `env` tag; a `default` tag makes a
// field optional.
type Config struct {
	APIName        string `env:"TC_APP_NAME" default:"tickcollector"`
	APIVersion     string `env:"TC_APP_VERSION" default:"v1"`
	ServerPort     string `env:"TC_SERVER_PORT" default:"8080"`
	ServerLogLevel string `env:"TC_LOG_LEVEL" default:"info"`

	Currency string `env:"TC_CURRENCY" default:"BTC"`

	DatabaseURL      string `env:"TC_DATABASE_URL"`
	PostgresSchema   string `env:"TC_PG_SCHEMA" default:"collector"`
	PostgresLogLevel string `env:"TC_PG_LOG_LEVEL" default:"warn"`

	RedisHost     string `env:"TC_REDIS_HOST" default:"localhost"`
	RedisPort     string `env:"TC_REDIS_PORT" default:"6379"`
	RedisPassword string `env:"TC_REDIS_PASSWORD" default:""`

	ExchangeBaseURL string `env:"TC_EXCHANGE_BASE_URL"`
	ExchangeWSURL   string `env:"TC_EXCHANGE_WS_URL"`

	SessionCount int `env:"TC_SESSION_COUNT" default:"3"`
	SessionCap   int `env:"TC_SESSION_CAP" default:"500"`
	BasePort     int `env:"TC_BASE_PORT" default:"9100"`

	BufferCapacityQuotes int `env:"TC_BUFFER_CAPACITY_QUOTES" default:"200000"`
	BufferCapacityTrades int `env:"TC_BUFFER_CAPACITY_TRADES" default:"100000"`

	FlushIntervalSec     int `env:"TC_FLUSH_INTERVAL_SEC" default:"3"`
	DepthIntervalSec     int `env:"TC_DEPTH_INTERVAL_SEC" default:"300"`
	LifecycleIntervalSec int `env:"TC_LIFECYCLE_INTERVAL_SEC" default:"300"`
	RebalanceIntervalSec int `env:"TC_REBALANCE_INTERVAL_SEC" default:"3600"`
	ExpiryBufferMin      int `env:"TC_EXPIRY_BUFFER_MIN" default:"5"`

	RateLimitRPS       float64 `env:"TC_RATE_LIMIT_RPS" default:"20"`
	DepthMaxLevels     int     `env:"TC_DEPTH_MAX_LEVELS" default:"20"`
	WriterRetryMax     int     `env:"TC_WRITER_RETRY_MAX" default:"3"`
	HeartbeatInterval  int     `env:"TC_HEARTBEAT_INTERVAL_SEC" default:"20"`
	CatalogCacheTTLSec int     `env:"TC_CATALOG_CACHE_TTL_SEC" default:"30"`
}

var (
	SingleLine string = "--------------------------------------------------"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the application configuration, loading it from the
// environment on first call.
func Get() (*Config, error) {
	zaplogger.Info(SingleLine)
	zaplogger.Info("Loading Configuration")

	once.Do(func() {
		instance, loadErr = loadConfig()
	})
	return instance, loadErr
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv populates the config from environment variables, falling
// back to each field's `default` tag, and erroring for required fields
// (no default tag present) that are unset.
func (c *Config) loadFromEnv() error {
	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(c).Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" {
			return fmt.Errorf("missing env tag for field %s", field.Name)
		}

		defaultVal, hasDefault := field.Tag.Lookup("default")
		value, isSet := os.LookupEnv(envTag)
		if !isSet {
			if !hasDefault {
				return fmt.Errorf("env variable %s is required but not set", envTag)
			}
			value = defaultVal
		}

		if err := setField(v.Field(i), field.Name, value); err != nil {
			return err
		}
	}

	return nil
}

func setField(f reflect.Value, name, value string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("env value for %s must be an integer, got %q: %v", name, value, err)
		}
		f.SetInt(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("env value for %s must be a number, got %q: %v", name, value, err)
		}
		f.SetFloat(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("env value for %s must be a bool, got %q: %v", name, value, err)
		}
		f.SetBool(b)
	default:
		return fmt.Errorf("unsupported config field type for %s: %s", name, f.Kind())
	}
	return nil
}

// String returns the configuration as a human-readable, secret-masked dump.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n--------------------------------------\n")
	sb.WriteString("Configuration:\n")
	sb.WriteString("--------------------------------------\n")

	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(*c)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := fmt.Sprintf("%v", v.Field(i).Interface())
		value = maskSensitiveField(field.Name, value)
		sb.WriteString(fmt.Sprintf("  %s:  %s\n", field.Name, value))
	}

	sb.WriteString("--------------------------------------\n")

	return sb.String()
}

func maskSensitiveField(fieldName, value string) string {
	sensitiveFields := []string{"token", "dsn", "secret", "password", "url"}

	fieldNameLower := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldNameLower, sensitive) {
			return maskValue(value)
		}
	}

	return value
}

func maskValue(value string) string {
	if len(value) <= 3 {
		return strings.Repeat("*", 7)
	}
	return value[:3] + strings.Repeat("*", 7)
}
