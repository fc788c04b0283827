package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	JobStorePath   string
	JWTSecret      string
	StoragePath    string
	GeoIPDBPath    string
	DefaultLocale  string
	AllowedOrigins []string

	AutoContentAPIKey  string
	AutoContentBaseURL string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	OpenAIOrg          string
	ProviderOrder      []string
	LLMMinInterval     time.Duration

	PollInterval            time.Duration
	PollDeadline            time.Duration
	InteractivePollInterval time.Duration
	InteractivePollDeadline time.Duration
	WorkerPollInterval      time.Duration
	WorkerStaleAfter        time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JobStorePath:   os.Getenv("JOB_STORE_PATH"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:  getEnv("DEFAULT_LOCALE", "en"),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		AutoContentAPIKey:  os.Getenv("AUTOCONTENT_API_KEY"),
		AutoContentBaseURL: getEnv("AUTOCONTENT_BASE_URL", "https://api.autocontentapi.com"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:          os.Getenv("OPENAI_ORG"),
		ProviderOrder:      getEnvList("PROVIDER_ORDER", []string{"autocontent", "gemini", "openai"}),
		LLMMinInterval:     getEnvDuration("LLM_MIN_INTERVAL", time.Second),

		PollInterval:            getEnvDuration("POLL_INTERVAL", 5*time.Second),
		PollDeadline:            getEnvDuration("POLL_DEADLINE", 10*time.Minute),
		InteractivePollInterval: getEnvDuration("INTERACTIVE_POLL_INTERVAL", 2*time.Second),
		InteractivePollDeadline: getEnvDuration("INTERACTIVE_POLL_DEADLINE", 60*time.Second),
		WorkerPollInterval:      getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerStaleAfter:        getEnvDuration("WORKER_STALE_AFTER", time.Minute),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 660)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.PollInterval <= 0 || cfg.InteractivePollInterval <= 0 {
		return nil, fmt.Errorf("poll intervals must be positive")
	}
	if cfg.PollDeadline < cfg.PollInterval {
		return nil, fmt.Errorf("POLL_DEADLINE must be at least POLL_INTERVAL")
	}
	if cfg.InteractivePollDeadline < cfg.InteractivePollInterval {
		return nil, fmt.Errorf("INTERACTIVE_POLL_DEADLINE must be at least INTERACTIVE_POLL_INTERVAL")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("5s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
