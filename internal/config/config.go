// Package config loads runtime configuration from the environment.
//
// A .env file in the working directory is loaded first (godotenv) and never
// overrides variables that are already set, so deployments keep full control.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAPIBaseURL is used when API_BASE_URL is unset.
const DefaultAPIBaseURL = "http://localhost:8081"

// ErrInsecureAPIBaseURL is returned when a production deployment points at
// a non-HTTPS analysis API.
var ErrInsecureAPIBaseURL = errors.New("config: API base URL must use HTTPS in production")

type Config struct {
	Port      int
	Env       string
	LogFormat string
	DBPath    string
	JWTSecret string

	// APIBaseURL is the external analysis backend.
	APIBaseURL      string
	APITimeout      time.Duration
	AdminEmail      string
	GAMeasurementID string
	GTMID           string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	RedisURL             string
	ProfileWebhookSecret string
	ChatDailyLimit       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// Production reports whether the deployment is a production one.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads .env (if present) and the environment, then validates the result.
func Load() (Config, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	port, err := getenvInt("PORT", 8080)
	if err != nil {
		return Config{}, err
	}
	chatLimit, err := getenvInt("CHAT_DAILY_LIMIT", 50)
	if err != nil {
		return Config{}, err
	}
	apiTimeout, err := getenvInt("API_TIMEOUT_SECONDS", 120)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:      port,
		Env:       getenv("ENV", "development"),
		LogFormat: getenv("LOG_FORMAT", "text"),
		DBPath:    getenv("DB_PATH", "data/leaseshield.db"),
		JWTSecret: getenv("JWT_SECRET", ""),

		APIBaseURL:      strings.TrimRight(getenv("API_BASE_URL", DefaultAPIBaseURL), "/"),
		APITimeout:      time.Duration(apiTimeout) * time.Second,
		AdminEmail:      getenv("ADMIN_EMAIL", ""),
		GAMeasurementID: getenv("GA_MEASUREMENT_ID", ""),
		GTMID:           getenv("GTM_ID", ""),

		GoogleClientID:     getenv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
		GoogleCallbackURL:  getenv("GOOGLE_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/google/callback", port)),

		RedisURL:             getenv("REDIS_URL", ""),
		ProfileWebhookSecret: getenv("PROFILE_WEBHOOK_SECRET", ""),
		ChatDailyLimit:       chatLimit,

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "leaseshield-exports"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold before the server starts.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: invalid API_BASE_URL %q", c.APIBaseURL)
	}
	if c.Production() && u.Scheme != "https" {
		return ErrInsecureAPIBaseURL
	}
	if c.Production() && c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required in production")
	}
	return nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q", key, value)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
