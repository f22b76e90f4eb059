package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env                         string
	ServiceName                 string
	HTTPPort                    int
	LogLevel                    string
	LogFile                     string
	LogMaxSizeMB                int
	LogMaxBackups               int
	ConfigPath                  string
	RequestTimeoutMS            int
	RequestTimeout              time.Duration
	CORSAllowedOrigins          []string
	CORSAllowedHeaders          []string
	CORSAllowCredentials        bool
	CORSMaxAgeSec               int
	RateLimitRPS                float64
	RateLimitBurst              int
	OIDCIssuer                  string
	OIDCAudience                string
	OIDCJWKSURL                 string
	JWKSTTLSeconds              int
	JWTClockSkewSec             int
	AuthRequiredRoles           []string
	DatabaseURL                 string
	DBMaxConns                  int
	DBMinConns                  int
	DBConnMaxIdleSec            int
	DBConnMaxLifeSec            int
	KafkaBrokers                []string
	KafkaClientID               string
	KafkaGroupID                string
	KafkaRetryMax               int
	KafkaWriteMS                int
	RedisAddr                   string
	RedisPassword               string
	RedisDB                     int
	AsynqRedisAddr              string
	AsynqRedisPass              string
	AsynqRedisDB                int
	AsynqQueue                  string
	AsynqConcurrency            int
	AsynqEnabled                bool
	InfluxURL                   string
	InfluxToken                 string
	InfluxOrg                   string
	InfluxBucket                string
	InfluxTimeoutMS             int
	OtelEnabled                 bool
	OtelEndpoint                string
	OtelInsecure                bool
	OtelSampleRatio             float64
	CapacityStandardWeeklyHours float64
	CapacityWeekPolicy          string
	CapacityMaxSuggestions      int
	CapacityAlertCacheTTLSec    int
	CapacitySweepIntervalSec    int
	CapacitySweepDepartments    []string
}

func (c Config) AlertCacheTTL() time.Duration {
	return time.Duration(c.CapacityAlertCacheTTLSec) * time.Second
}

func defaults(serviceNameDefault string, httpPortDefault int) map[string]any {
	return map[string]any{
		"SERVICE_NAME":                     serviceNameDefault,
		"HTTP_PORT":                        httpPortDefault,
		"LOG_LEVEL":                        "info",
		"LOG_MAX_SIZE_MB":                  100,
		"LOG_MAX_BACKUPS":                  5,
		"REQUEST_TIMEOUT_MS":               30000,
		"RATE_LIMIT_RPS":                   20.0,
		"RATE_LIMIT_BURST":                 40,
		"CORS_ALLOW_CREDENTIALS":           false,
		"CORS_MAX_AGE_SECONDS":             600,
		"JWKS_CACHE_TTL_SECONDS":           300,
		"JWT_CLOCK_SKEW_SECONDS":           60,
		"DB_MAX_CONNS":                     10,
		"DB_MIN_CONNS":                     1,
		"DB_CONN_MAX_IDLE_SECONDS":         300,
		"DB_CONN_MAX_LIFETIME_SECONDS":     1800,
		"KAFKA_RETRY_MAX":                  5,
		"KAFKA_WRITE_TIMEOUT_MS":           5000,
		"REDIS_DB":                         0,
		"ASYNQ_REDIS_DB":                   0,
		"ASYNQ_QUEUE":                      "default",
		"ASYNQ_CONCURRENCY":                10,
		"ASYNQ_ENABLED":                    false,
		"INFLUX_TIMEOUT_MS":                5000,
		"OTEL_ENABLED":                     false,
		"OTEL_INSECURE":                    true,
		"OTEL_SAMPLE_RATIO":                1.0,
		"CAPACITY_STANDARD_WEEKLY_HOURS":   40.0,
		"CAPACITY_WEEK_POLICY":             "overlap",
		"CAPACITY_MAX_SUGGESTIONS":         3,
		"CAPACITY_ALERT_CACHE_TTL_SECONDS": 60,
		"CAPACITY_SWEEP_INTERVAL_SECONDS":  900,
	}
}

// Load reads defaults, then the optional config file at CONFIG_PATH (JSON or
// YAML), then the environment. Bad values are reported as problems and
// replaced by defaults so the process can still start and surface them on
// /readyz.
func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	v := viper.New()
	for k, val := range defaults(serviceNameDefault, httpPortDefault) {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	problems := make([]Problem, 0, 4)
	cfg := Config{ConfigPath: strings.TrimSpace(os.Getenv("CONFIG_PATH"))}
	if cfg.ConfigPath != "" {
		v.SetConfigFile(cfg.ConfigPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			switch {
			case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
				problems = append(problems, Problem{Field: "CONFIG_PATH", Message: "config file not found"})
			default:
				problems = append(problems, Problem{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)})
			}
		}
	}

	r := reader{v: v, problems: &problems}

	cfg.Env = r.str("ENV")
	envProvided := cfg.Env != ""
	cfg.ServiceName = r.str("SERVICE_NAME")
	cfg.HTTPPort = r.integer("HTTP_PORT", httpPortDefault)
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" && strings.TrimSpace(os.Getenv("HTTP_PORT")) == "" {
		if n, ok := asInt(p); ok {
			cfg.HTTPPort = n
		}
	}
	cfg.LogLevel = r.str("LOG_LEVEL")
	cfg.LogFile = r.str("LOG_FILE")
	cfg.LogMaxSizeMB = r.integer("LOG_MAX_SIZE_MB", 100)
	cfg.LogMaxBackups = r.integer("LOG_MAX_BACKUPS", 5)
	cfg.RequestTimeoutMS = r.integer("REQUEST_TIMEOUT_MS", 30000)
	cfg.CORSAllowedOrigins = r.list("CORS_ALLOWED_ORIGINS")
	cfg.CORSAllowedHeaders = r.list("CORS_ALLOWED_HEADERS")
	cfg.CORSAllowCredentials = r.boolean("CORS_ALLOW_CREDENTIALS", false)
	cfg.CORSMaxAgeSec = r.integer("CORS_MAX_AGE_SECONDS", 600)
	cfg.RateLimitRPS = r.float("RATE_LIMIT_RPS", 20)
	cfg.RateLimitBurst = r.integer("RATE_LIMIT_BURST", 40)
	cfg.OIDCIssuer = r.str("OIDC_ISSUER")
	cfg.OIDCAudience = r.str("OIDC_AUDIENCE")
	cfg.OIDCJWKSURL = r.str("OIDC_JWKS_URL")
	cfg.JWKSTTLSeconds = r.integer("JWKS_CACHE_TTL_SECONDS", 300)
	cfg.JWTClockSkewSec = r.integer("JWT_CLOCK_SKEW_SECONDS", 60)
	cfg.AuthRequiredRoles = r.list("AUTH_REQUIRED_ROLES")
	cfg.DatabaseURL = r.str("DATABASE_URL")
	cfg.DBMaxConns = r.integer("DB_MAX_CONNS", 10)
	cfg.DBMinConns = r.integer("DB_MIN_CONNS", 1)
	cfg.DBConnMaxIdleSec = r.integer("DB_CONN_MAX_IDLE_SECONDS", 300)
	cfg.DBConnMaxLifeSec = r.integer("DB_CONN_MAX_LIFETIME_SECONDS", 1800)
	cfg.KafkaBrokers = r.list("KAFKA_BROKERS")
	cfg.KafkaClientID = r.str("KAFKA_CLIENT_ID")
	cfg.KafkaGroupID = r.str("KAFKA_CONSUMER_GROUP")
	cfg.KafkaRetryMax = r.integer("KAFKA_RETRY_MAX", 5)
	cfg.KafkaWriteMS = r.integer("KAFKA_WRITE_TIMEOUT_MS", 5000)
	cfg.RedisAddr = r.str("REDIS_ADDR")
	cfg.RedisPassword = r.str("REDIS_PASSWORD")
	cfg.RedisDB = r.integer("REDIS_DB", 0)
	cfg.AsynqRedisAddr = r.str("ASYNQ_REDIS_ADDR")
	cfg.AsynqRedisPass = r.str("ASYNQ_REDIS_PASSWORD")
	cfg.AsynqRedisDB = r.integer("ASYNQ_REDIS_DB", 0)
	cfg.AsynqQueue = r.str("ASYNQ_QUEUE")
	cfg.AsynqConcurrency = r.integer("ASYNQ_CONCURRENCY", 10)
	cfg.AsynqEnabled = r.boolean("ASYNQ_ENABLED", false)
	cfg.InfluxURL = r.str("INFLUX_URL")
	cfg.InfluxToken = r.str("INFLUX_TOKEN")
	cfg.InfluxOrg = r.str("INFLUX_ORG")
	cfg.InfluxBucket = r.str("INFLUX_BUCKET")
	cfg.InfluxTimeoutMS = r.integer("INFLUX_TIMEOUT_MS", 5000)
	cfg.OtelEnabled = r.boolean("OTEL_ENABLED", false)
	cfg.OtelEndpoint = r.str("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OtelInsecure = r.boolean("OTEL_INSECURE", true)
	cfg.OtelSampleRatio = r.float("OTEL_SAMPLE_RATIO", 1.0)
	cfg.CapacityStandardWeeklyHours = r.float("CAPACITY_STANDARD_WEEKLY_HOURS", 40)
	cfg.CapacityWeekPolicy = strings.ToLower(r.str("CAPACITY_WEEK_POLICY"))
	cfg.CapacityMaxSuggestions = r.integer("CAPACITY_MAX_SUGGESTIONS", 3)
	cfg.CapacityAlertCacheTTLSec = r.integer("CAPACITY_ALERT_CACHE_TTL_SECONDS", 60)
	cfg.CapacitySweepIntervalSec = r.integer("CAPACITY_SWEEP_INTERVAL_SECONDS", 900)
	cfg.CapacitySweepDepartments = r.list("CAPACITY_SWEEP_DEPARTMENTS")

	// If issuer is set and no explicit JWKS URL is provided, default to issuer/.well-known/jwks.json.
	if cfg.OIDCIssuer != "" && cfg.OIDCJWKSURL == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}
	if cfg.OtelEndpoint == "" {
		cfg.OtelEndpoint = r.str("OTEL_ENDPOINT")
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	validate(&cfg, &problems, httpPortDefault)
	return cfg, problems
}

func validate(cfg *Config, problems *[]Problem, httpPortDefault int) {
	check := func(bad bool, field string, message string, fix func()) {
		if bad {
			*problems = append(*problems, Problem{Field: field, Message: message})
			fix()
		}
	}

	check(cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535, "HTTP_PORT", "HTTP_PORT must be 1-65535", func() { cfg.HTTPPort = httpPortDefault })
	check(cfg.RequestTimeoutMS <= 0, "REQUEST_TIMEOUT_MS", "REQUEST_TIMEOUT_MS must be > 0", func() { cfg.RequestTimeoutMS = 30000 })
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	check(cfg.LogMaxSizeMB <= 0, "LOG_MAX_SIZE_MB", "LOG_MAX_SIZE_MB must be > 0", func() { cfg.LogMaxSizeMB = 100 })
	check(cfg.LogMaxBackups < 0, "LOG_MAX_BACKUPS", "LOG_MAX_BACKUPS must be >= 0", func() { cfg.LogMaxBackups = 5 })
	check(cfg.RateLimitRPS < 0, "RATE_LIMIT_RPS", "RATE_LIMIT_RPS must be >= 0", func() { cfg.RateLimitRPS = 20 })
	check(cfg.RateLimitBurst < 0, "RATE_LIMIT_BURST", "RATE_LIMIT_BURST must be >= 0", func() { cfg.RateLimitBurst = 40 })
	check(cfg.CORSMaxAgeSec < 0, "CORS_MAX_AGE_SECONDS", "CORS_MAX_AGE_SECONDS must be >= 0", func() { cfg.CORSMaxAgeSec = 600 })
	check(len(cfg.AuthRequiredRoles) > 0 && cfg.OIDCJWKSURL == "", "AUTH_REQUIRED_ROLES", "AUTH_REQUIRED_ROLES needs OIDC_ISSUER or OIDC_JWKS_URL", func() {})
	check(cfg.JWKSTTLSeconds <= 0, "JWKS_CACHE_TTL_SECONDS", "JWKS_CACHE_TTL_SECONDS must be > 0", func() { cfg.JWKSTTLSeconds = 300 })
	check(cfg.JWTClockSkewSec < 0, "JWT_CLOCK_SKEW_SECONDS", "JWT_CLOCK_SKEW_SECONDS must be >= 0", func() { cfg.JWTClockSkewSec = 60 })
	check(cfg.DBMaxConns <= 0, "DB_MAX_CONNS", "DB_MAX_CONNS must be > 0", func() { cfg.DBMaxConns = 10 })
	check(cfg.DBMinConns < 0, "DB_MIN_CONNS", "DB_MIN_CONNS must be >= 0", func() { cfg.DBMinConns = 1 })
	check(cfg.DBMinConns > cfg.DBMaxConns, "DB_MIN_CONNS", "DB_MIN_CONNS must be <= DB_MAX_CONNS", func() { cfg.DBMinConns = cfg.DBMaxConns })
	check(cfg.DBConnMaxIdleSec <= 0, "DB_CONN_MAX_IDLE_SECONDS", "DB_CONN_MAX_IDLE_SECONDS must be > 0", func() { cfg.DBConnMaxIdleSec = 300 })
	check(cfg.DBConnMaxLifeSec <= 0, "DB_CONN_MAX_LIFETIME_SECONDS", "DB_CONN_MAX_LIFETIME_SECONDS must be > 0", func() { cfg.DBConnMaxLifeSec = 1800 })
	check(cfg.KafkaRetryMax < 0, "KAFKA_RETRY_MAX", "KAFKA_RETRY_MAX must be >= 0", func() { cfg.KafkaRetryMax = 5 })
	check(cfg.KafkaWriteMS <= 0, "KAFKA_WRITE_TIMEOUT_MS", "KAFKA_WRITE_TIMEOUT_MS must be > 0", func() { cfg.KafkaWriteMS = 5000 })
	check(cfg.RedisDB < 0, "REDIS_DB", "REDIS_DB must be >= 0", func() { cfg.RedisDB = 0 })
	check(cfg.AsynqRedisDB < 0, "ASYNQ_REDIS_DB", "ASYNQ_REDIS_DB must be >= 0", func() { cfg.AsynqRedisDB = 0 })
	check(cfg.AsynqConcurrency <= 0, "ASYNQ_CONCURRENCY", "ASYNQ_CONCURRENCY must be > 0", func() { cfg.AsynqConcurrency = 10 })
	check(cfg.AsynqQueue == "", "ASYNQ_QUEUE", "ASYNQ_QUEUE must not be empty", func() { cfg.AsynqQueue = "default" })
	check(cfg.InfluxTimeoutMS <= 0, "INFLUX_TIMEOUT_MS", "INFLUX_TIMEOUT_MS must be > 0", func() { cfg.InfluxTimeoutMS = 5000 })
	check(cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1, "OTEL_SAMPLE_RATIO", "OTEL_SAMPLE_RATIO must be 0-1", func() { cfg.OtelSampleRatio = 1.0 })
	check(cfg.CapacityStandardWeeklyHours <= 0 || cfg.CapacityStandardWeeklyHours > 168, "CAPACITY_STANDARD_WEEKLY_HOURS", "CAPACITY_STANDARD_WEEKLY_HOURS must be > 0 and <= 168", func() { cfg.CapacityStandardWeeklyHours = 40 })
	check(cfg.CapacityWeekPolicy != "overlap" && cfg.CapacityWeekPolicy != "prorate", "CAPACITY_WEEK_POLICY", "CAPACITY_WEEK_POLICY must be overlap or prorate", func() { cfg.CapacityWeekPolicy = "overlap" })
	check(cfg.CapacityMaxSuggestions <= 0, "CAPACITY_MAX_SUGGESTIONS", "CAPACITY_MAX_SUGGESTIONS must be > 0", func() { cfg.CapacityMaxSuggestions = 3 })
	check(cfg.CapacityAlertCacheTTLSec < 0, "CAPACITY_ALERT_CACHE_TTL_SECONDS", "CAPACITY_ALERT_CACHE_TTL_SECONDS must be >= 0", func() { cfg.CapacityAlertCacheTTLSec = 60 })
	check(cfg.CapacitySweepIntervalSec <= 0, "CAPACITY_SWEEP_INTERVAL_SECONDS", "CAPACITY_SWEEP_INTERVAL_SECONDS must be > 0", func() { cfg.CapacitySweepIntervalSec = 900 })
}

// reader pulls typed values out of viper, recording a problem (and keeping
// the fallback) when a value cannot be parsed.
type reader struct {
	v        *viper.Viper
	problems *[]Problem
}

func (r reader) str(key string) string {
	raw := r.v.Get(key)
	if raw == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(raw))
}

func (r reader) integer(key string, fallback int) int {
	raw := r.v.Get(key)
	if raw == nil {
		return fallback
	}
	n, ok := asInt(raw)
	if !ok {
		*r.problems = append(*r.problems, Problem{Field: key, Message: key + " must be an integer"})
		return fallback
	}
	return n
}

func (r reader) float(key string, fallback float64) float64 {
	raw := r.v.Get(key)
	if raw == nil {
		return fallback
	}
	f, ok := asFloat(raw)
	if !ok {
		*r.problems = append(*r.problems, Problem{Field: key, Message: key + " must be a number"})
		return fallback
	}
	return f
}

func (r reader) boolean(key string, fallback bool) bool {
	raw := r.v.Get(key)
	if raw == nil {
		return fallback
	}
	if b, ok := raw.(bool); ok {
		return b
	}
	b, ok := asBool(fmt.Sprint(raw))
	if !ok {
		*r.problems = append(*r.problems, Problem{Field: key, Message: key + " must be a boolean"})
		return fallback
	}
	return b
}

func (r reader) list(key string) []string {
	switch t := r.v.Get(key).(type) {
	case nil:
		return nil
	case string:
		return parseCSV(t)
	case []string:
		return parseCSV(strings.Join(t, ","))
	case []any:
		return parseAnyCSV(t)
	default:
		return parseCSV(fmt.Sprint(t))
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
