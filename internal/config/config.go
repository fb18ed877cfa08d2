package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultJWTSecret is the development fallback used when FOCUSFLOW_JWT_SECRET is unset.
	DefaultJWTSecret = "focusflow-dev-secret-change-me"
	// DefaultTokenTTL is the token lifetime used when FOCUSFLOW_JWT_EXPIRES_IN is unset.
	DefaultTokenTTL = time.Hour

	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// ErrMissingSecret is returned by Validate when strict secret mode forbids the fallback.
var ErrMissingSecret = errors.New("FOCUSFLOW_JWT_SECRET must be set in production")

// Config holds application level configuration loaded from environment variables.
type Config struct {
	Env          string
	ServerPort   string
	Store        string
	MySQLDSN     string
	RedisAddr    string
	RedisDB      int
	RedisPass    string
	JWTSecret    string
	TokenTTL     time.Duration
	StrictSecret bool
	ResetDB      bool
	LogLevel     string
	SwaggerHost  string

	tokenTTLErr error
}

// Load builds Config from environment with sensible defaults.
func Load() *Config {
	ttl, ttlErr := lookupDuration("FOCUSFLOW_JWT_EXPIRES_IN", DefaultTokenTTL)
	if ttlErr != nil {
		ttl = DefaultTokenTTL
	}
	return &Config{
		Env:          getEnv("FOCUSFLOW_ENV", EnvDevelopment),
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		Store:        strings.ToLower(getEnv("FOCUSFLOW_STORE", StoreMySQL)),
		MySQLDSN:     getEnv("MYSQL_DSN", "focusflow:focusflow@tcp(localhost:3306)/focusflow?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		JWTSecret:    os.Getenv("FOCUSFLOW_JWT_SECRET"),
		TokenTTL:     ttl,
		tokenTTLErr:  ttlErr,
		StrictSecret: getEnvBool("FOCUSFLOW_STRICT_SECRET", false),
		ResetDB:      getEnvBool("RESET_DB", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SwaggerHost:  os.Getenv("SWAGGER_HOST"),
	}
}

// IsProduction reports whether the deployment mode is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// UsesFallbackSecret reports whether no signing secret was configured.
func (c *Config) UsesFallbackSecret() bool {
	return c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret
}

// SigningSecret returns the configured secret or the development fallback.
func (c *Config) SigningSecret() string {
	if c.JWTSecret == "" {
		return DefaultJWTSecret
	}
	return c.JWTSecret
}

// Validate rejects an unparseable or non-positive token lifetime and applies
// the secret policy. The fallback secret is only an error in production with
// StrictSecret enabled; callers log a warning otherwise.
func (c *Config) Validate() error {
	if c.tokenTTLErr != nil {
		return fmt.Errorf("FOCUSFLOW_JWT_EXPIRES_IN: %w", c.tokenTTLErr)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("FOCUSFLOW_JWT_EXPIRES_IN: invalid token ttl %s", c.TokenTTL)
	}
	if c.Store != StoreMySQL && c.Store != StoreMemory {
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.IsProduction() && c.StrictSecret && c.UsesFallbackSecret() {
		return ErrMissingSecret
	}
	return nil
}

// ClientConfig configures the FocusFlow client.
type ClientConfig struct {
	APIURL  string
	DBPath  string
	Timeout time.Duration
}

// LoadClient builds ClientConfig from environment with sensible defaults.
func LoadClient() *ClientConfig {
	return &ClientConfig{
		APIURL:  strings.TrimRight(getEnv("FOCUSFLOW_API_URL", "http://localhost:8080"), "/"),
		DBPath:  getEnv("FOCUSFLOW_CLIENT_DB_PATH", "data/focusflow-client.db"),
		Timeout: getEnvDuration("FOCUSFLOW_CLIENT_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvDuration is the lenient variant used for client settings: an
// unparseable or non-positive value yields def.
func getEnvDuration(key string, def time.Duration) time.Duration {
	parsed, err := lookupDuration(key, def)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func lookupDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	return ParseDuration(v)
}

var durationPattern = regexp.MustCompile(`(?i)^(-?(?:\d+)?\.?\d+) *(milliseconds?|msecs?|ms|seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|w|years?|yrs?|y)?$`)

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
	"y":  time.Duration(365.25 * float64(24*time.Hour)),
}

// ParseDuration parses the expiry grammar shared with JWT tooling: a number
// with an optional unit ("3600", "90m", "2 days", "1.5h", "1y"). A bare
// number is milliseconds. Compound Go durations such as "1h30m" are also
// accepted.
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	m := durationPattern.FindStringSubmatch(v)
	if m == nil {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", v, err)
		}
		return d, nil
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", v, err)
	}
	unit := durationUnits[canonicalUnit(m[2])]
	d := n * float64(unit)
	if math.Abs(d) >= math.MaxInt64 {
		return 0, fmt.Errorf("parse duration %q: out of range", v)
	}
	return time.Duration(math.Round(d)), nil
}

func canonicalUnit(u string) string {
	u = strings.ToLower(u)
	switch {
	case u == "":
		return "ms"
	case strings.HasPrefix(u, "ms"), strings.HasPrefix(u, "milli"):
		return "ms"
	case strings.HasPrefix(u, "mi") || u == "m":
		return "m"
	case strings.HasPrefix(u, "y"):
		return "y"
	default:
		return u[:1]
	}
}
