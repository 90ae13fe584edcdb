// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	RateLimiter RateLimiterConfig
	Security    SecurityConfig
	Logging     LoggingConfig
	Metrics     MetricsConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	Type  string
	Redis RedisConfig
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type RateLimiterConfig struct {
	Rules              map[string]domain.RateLimitRule
	SweepInterval      time.Duration
	ThreatIdleTTL      time.Duration
	AutoBlockThreshold float64
	AutoBlockDuration  time.Duration
}

type SecurityConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	CookieName    string
	SeedUsers     []domain.UserRecord
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// defaultRules are the named limiters every deployment starts with.
var defaultRules = []domain.RateLimitRule{
	{Prefix: "auth", Requests: 5, Window: 60 * time.Second},
	{Prefix: "signup", Requests: 3, Window: time.Hour},
	{Prefix: "api", Requests: 100, Window: 60 * time.Second},
	{Prefix: "admin", Requests: 30, Window: 60 * time.Second},
	{Prefix: "createPost", Requests: 5, Window: 60 * time.Second},
	{Prefix: "createComment", Requests: 10, Window: 60 * time.Second},
}

func Load() (Config, error) {
	_ = godotenv.Load()

	server, err := buildServerConfig()
	if err != nil {
		return Config{}, err
	}

	storageType := strings.ToLower(getEnv("STORAGE_TYPE", "memory"))
	if storageType != "memory" && storageType != "redis" {
		return Config{}, fmt.Errorf("invalid STORAGE_TYPE: %s", storageType)
	}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimiterConfig, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	securityConfig, err := buildSecurityConfig()
	if err != nil {
		return Config{}, err
	}

	metricsEnabled, err := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid METRICS_ENABLED: %w", err)
	}

	return Config{
		Server: server,
		Storage: StorageConfig{
			Type:  storageType,
			Redis: redisConfig,
		},
		RateLimiter: rateLimiterConfig,
		Security:    securityConfig,
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Metrics: MetricsConfig{
			Enabled:   metricsEnabled,
			Path:      getEnv("METRICS_PATH", "/metrics"),
			Namespace: getEnv("METRICS_NAMESPACE", "request_guard"),
		},
	}, nil
}

func buildServerConfig() (ServerConfig, error) {
	read, err := getSeconds("SERVER_READ_TIMEOUT_SECONDS", 10)
	if err != nil {
		return ServerConfig{}, err
	}
	write, err := getSeconds("SERVER_WRITE_TIMEOUT_SECONDS", 10)
	if err != nil {
		return ServerConfig{}, err
	}
	shutdown, err := getSeconds("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 10)
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		Port:            getEnv("SERVER_PORT", "8080"),
		ReadTimeout:     read,
		WriteTimeout:    write,
		ShutdownTimeout: shutdown,
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		Host:      host,
		Port:      port,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        db,
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "guard:"),
	}, nil
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	rules := make(map[string]domain.RateLimitRule, len(defaultRules))
	for _, def := range defaultRules {
		rule, err := buildRule(def)
		if err != nil {
			return RateLimiterConfig{}, err
		}
		rules[rule.Prefix] = rule
	}

	overrides, err := buildRuleOverrides()
	if err != nil {
		return RateLimiterConfig{}, err
	}
	for prefix, rule := range overrides {
		rules[prefix] = rule
	}

	sweep, err := getSeconds("RATE_LIMIT_SWEEP_INTERVAL_SECONDS", 300)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	idle, err := getSeconds("THREAT_IDLE_TTL_SECONDS", 3600)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	threshold, err := strconv.ParseFloat(getEnv("THREAT_AUTO_BLOCK_THRESHOLD", "0"), 64)
	if err != nil || threshold < 0 {
		return RateLimiterConfig{}, fmt.Errorf("invalid THREAT_AUTO_BLOCK_THRESHOLD: %s", os.Getenv("THREAT_AUTO_BLOCK_THRESHOLD"))
	}
	blockMinutes, err := strconv.Atoi(getEnv("THREAT_AUTO_BLOCK_DURATION_MINUTES", "15"))
	if err != nil {
		return RateLimiterConfig{}, fmt.Errorf("invalid THREAT_AUTO_BLOCK_DURATION_MINUTES: %w", err)
	}

	return RateLimiterConfig{
		Rules:              rules,
		SweepInterval:      sweep,
		ThreatIdleTTL:      idle,
		AutoBlockThreshold: threshold,
		AutoBlockDuration:  time.Duration(blockMinutes) * time.Minute,
	}, nil
}

// buildRule applies RATE_LIMIT_<PREFIX>_REQUESTS and
// RATE_LIMIT_<PREFIX>_WINDOW_SECONDS on top of def.
func buildRule(def domain.RateLimitRule) (domain.RateLimitRule, error) {
	name := envName(def.Prefix)

	requests, err := strconv.Atoi(getEnv("RATE_LIMIT_"+name+"_REQUESTS", strconv.Itoa(def.Requests)))
	if err != nil {
		return domain.RateLimitRule{}, fmt.Errorf("invalid RATE_LIMIT_%s_REQUESTS: %w", name, err)
	}
	window, err := getSeconds("RATE_LIMIT_"+name+"_WINDOW_SECONDS", int(def.Window/time.Second))
	if err != nil {
		return domain.RateLimitRule{}, err
	}

	rule := domain.RateLimitRule{Prefix: def.Prefix, Requests: requests, Window: window}
	if err := rule.Validate(); err != nil {
		return domain.RateLimitRule{}, err
	}
	return rule, nil
}

// buildRuleOverrides parses RATE_LIMIT_RULES=prefix:requests:window_seconds,...
func buildRuleOverrides() (map[string]domain.RateLimitRule, error) {
	raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_RULES"))
	if raw == "" {
		return map[string]domain.RateLimitRule{}, nil
	}

	overrides := make(map[string]domain.RateLimitRule)
	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("rate limit rule must follow PREFIX:REQUESTS:WINDOW_SECONDS: %s", item)
		}

		prefix := strings.TrimSpace(parts[0])
		requests, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid requests for rule %s: %w", prefix, err)
		}
		windowSeconds, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid window seconds for rule %s: %w", prefix, err)
		}

		rule := domain.RateLimitRule{
			Prefix:   prefix,
			Requests: requests,
			Window:   time.Duration(windowSeconds) * time.Second,
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		overrides[prefix] = rule
	}

	return overrides, nil
}

func buildSecurityConfig() (SecurityConfig, error) {
	ttlHours, err := strconv.Atoi(getEnv("SESSION_TTL_HOURS", "24"))
	if err != nil || ttlHours <= 0 {
		return SecurityConfig{}, fmt.Errorf("invalid SESSION_TTL_HOURS: %s", os.Getenv("SESSION_TTL_HOURS"))
	}

	secret := os.Getenv("SESSION_SECRET")
	if len(secret) < 32 {
		return SecurityConfig{}, fmt.Errorf("SESSION_SECRET must be at least 32 characters")
	}

	users, err := parseSeedUsers(os.Getenv("SEED_USERS"))
	if err != nil {
		return SecurityConfig{}, err
	}

	return SecurityConfig{
		SessionSecret: secret,
		SessionTTL:    time.Duration(ttlHours) * time.Hour,
		CookieName:    getEnv("SESSION_COOKIE_NAME", "session"),
		SeedUsers:     users,
	}, nil
}

// parseSeedUsers reads id:email:role[:username],...
func parseSeedUsers(raw string) ([]domain.UserRecord, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var users []domain.UserRecord
	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("seed user must follow ID:EMAIL:ROLE[:USERNAME]: %s", item)
		}
		role, err := domain.ParseRole(parts[2])
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", parts[0], err)
		}
		u := domain.UserRecord{
			ID:    strings.TrimSpace(parts[0]),
			Email: strings.TrimSpace(parts[1]),
			Role:  role,
		}
		if len(parts) == 4 {
			u.Username = strings.TrimSpace(parts[3])
		}
		if u.ID == "" {
			return nil, fmt.Errorf("seed user id is required: %s", item)
		}
		users = append(users, u)
	}
	return users, nil
}

// envName turns a limiter prefix like createPost into CREATE_POST.
func envName(prefix string) string {
	var b strings.Builder
	for i, r := range prefix {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		if r == '-' || r == '.' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func getSeconds(key string, fallback int) (time.Duration, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(v) * time.Second, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
