package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/nlimpid/hbrest/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix read by the hbscan command.
const EnvPrefix = "HBREST_"

// Config is the client-side configuration of hbrest.
type Config struct {
	// Endpoint is the base URL of the REST gateway, e.g. http://localhost:8080.
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"ratelimit"` // requests per second, 0 disables
	Burst     int           `mapstructure:"burst"`
	Log       logger.Config `mapstructure:"log"`
	Scan      ScanConfig    `mapstructure:"scan"`
}

// ScanConfig holds defaults applied to scans that do not set them.
type ScanConfig struct {
	Table       string `mapstructure:"table"`
	Batch       int    `mapstructure:"batch"`
	MaxVersions int    `mapstructure:"maxversions"`
	Parallel    int    `mapstructure:"parallel"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Endpoint: "http://localhost:8080",
		Timeout:  30 * time.Second,
		Burst:    1,
		Log: logger.Config{
			Level:  "INFO",
			Format: "text",
		},
		Scan: ScanConfig{
			Batch:    100,
			Parallel: 4,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", c.Endpoint)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("ratelimit must not be negative")
	}
	if c.Scan.Batch < 0 {
		return fmt.Errorf("scan.batch must not be negative")
	}
	return nil
}

// Load loads configuration from an optional file and environment variables.
// prefix: Environment variable prefix (e.g. "HBREST_")
// path: config file (yaml, json, toml, .env); empty skips it
// target: Pointer to the config struct to load into. Fields not present in
// any source keep the value they already hold.
func Load(prefix, path string, target interface{}) error {
	v := viper.New()

	// 1. Load from the config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// 2. Load from environment variables
	// HBREST_LOG_LEVEL -> log.level
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		propKey := strings.TrimPrefix(key, prefixUpper)
		propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
		propKey = strings.TrimPrefix(propKey, ".")
		if propKey == "" {
			continue
		}
		v.Set(propKey, value)
	}

	// 3. Unmarshal into struct
	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}
