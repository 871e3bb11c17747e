package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends accepted by DATA_BACKEND and UPSTREAM_BACKEND.
var validBackends = []string{"memory", "sqlite", "sheets", "remote"}

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string
	// TrustedProxies are CIDRs allowed to set X-Forwarded-For, on top of
	// loopback and private networks.
	TrustedProxies []string

	// Backend selection
	DataBackend string
	// UpstreamBackend is what the worker pulls from before writing into
	// the sqlite store.
	UpstreamBackend string
	DataDir         string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Remote expense API
	APIBaseURL  string
	APIToken    string
	APIEmail    string
	APIPassword string

	// Google Sheets
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleReportSheetName string

	// Report cache
	CacheSize int
	CacheTTL  time.Duration

	// Worker
	RefreshInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		DataBackend:     getEnv("DATA_BACKEND", "memory"),
		UpstreamBackend: getEnv("UPSTREAM_BACKEND", "remote"),
		DataDir:         getEnv("DATA_DIR", "data"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledgerlens.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledgerlens"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "snapshot_refresh"),

		APIBaseURL:  getEnv("API_BASE_URL", ""),
		APIToken:    getEnv("API_TOKEN", ""),
		APIEmail:    getEnv("API_EMAIL", ""),
		APIPassword: getEnv("API_PASSWORD", ""),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleReportSheetName: getEnv("GOOGLE_REPORT_SHEET_NAME", ""),

		CacheSize: getEnvInt("CACHE_SIZE", 128),
		CacheTTL:  getEnvDuration("CACHE_TTL", 10*time.Minute),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 15*time.Minute),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 10.1.0.0/16", cidr))
		}
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	errors = append(errors, c.validateBackend(c.DataBackend)...)

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.RefreshInterval != 0 && c.RefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be 0 or at least 1 minute", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings only the refresh worker needs: a
// sqlite store and a usable upstream.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.DataBackend != "sqlite" {
		errors = append(errors, fmt.Sprintf("worker requires DATA_BACKEND=sqlite, got '%s'", c.DataBackend))
	}
	if c.UpstreamBackend != "remote" && c.UpstreamBackend != "sheets" {
		errors = append(errors, fmt.Sprintf("invalid upstream backend '%s': must be one of [remote sheets]", c.UpstreamBackend))
	} else {
		errors = append(errors, c.validateBackend(c.UpstreamBackend)...)
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateBackend(b string) []string {
	var errors []string
	switch b {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
			break
		}
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
	case "remote":
		if c.APIBaseURL == "" {
			errors = append(errors, "API base URL is required when using remote backend")
		} else if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': must be http or https", c.APIBaseURL))
		}
		if c.APIToken == "" && (c.APIEmail == "" || c.APIPassword == "") {
			errors = append(errors, "either API_TOKEN or both API_EMAIL and API_PASSWORD must be provided for remote backend")
		}
	case "memory":
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using memory backend")
		}
	}
	return errors
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
