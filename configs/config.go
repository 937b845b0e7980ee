package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

// Enabled reports whether object storage credentials are present.
func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != ""
}

type Compute struct {
	GenerationURL string
	UploadURL     string
	APIKey        string
	APIKeyHeader  string
	Timeout       time.Duration
	RatePerSec    float64
}

type Retry struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	StaleAfter  time.Duration
}

type Youtube struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Enabled reports whether the publication sync can authenticate.
func (y Youtube) Enabled() bool {
	return y.ClientID != "" && y.ClientSecret != "" && y.RefreshToken != ""
}

type Config struct {
	PostgresURI             string
	RedisURI                string
	Port                    string
	PublicBaseURL           string
	GenerationCallbackPath  string
	UploadCallbackPath      string
	DispatchSchedule        string
	PublicationSyncSchedule string
	StaleReaperSchedule     string
	CallbackTokenTTL        time.Duration
	AdminTokenTTL           time.Duration
	SecretKey               string
	AdminAPIKey             string
	VerifyArtifacts         bool
	LogLevel                string
	Compute                 Compute
	Retry                   Retry
	R2                      R2
	Youtube                 Youtube
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI:             getEnv("POSTGRES_URI", ""),
		RedisURI:                getEnv("REDIS_URI", "127.0.0.1:6379"),
		Port:                    getEnv("PORT", "3000"),
		PublicBaseURL:           strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		GenerationCallbackPath:  getEnv("GENERATION_CALLBACK_PATH", "/callbacks/video-generation"),
		UploadCallbackPath:      getEnv("UPLOAD_CALLBACK_PATH", "/callbacks/youtube-upload"),
		DispatchSchedule:        getEnv("DISPATCH_SCHEDULE", "@every 00h01m00s"),
		PublicationSyncSchedule: getEnv("PUBLICATION_SYNC_SCHEDULE", "@every 00h15m00s"),
		StaleReaperSchedule:     getEnv("STALE_REAPER_SCHEDULE", "@every 00h10m00s"),
		CallbackTokenTTL:        getEnvDuration("CALLBACK_TOKEN_TTL", 48*time.Hour),
		AdminTokenTTL:           getEnvDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
		SecretKey:               getEnv("SECRET_KEY", ""),
		AdminAPIKey:             getEnv("ADMIN_API_KEY", ""),
		VerifyArtifacts:         getEnvBool("VERIFY_ARTIFACTS", false),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		Compute: Compute{
			GenerationURL: getEnv("COMPUTE_GENERATION_URL", ""),
			UploadURL:     getEnv("COMPUTE_UPLOAD_URL", ""),
			APIKey:        getEnv("COMPUTE_API_KEY", ""),
			APIKeyHeader:  getEnv("COMPUTE_API_KEY_HEADER", "X-API-Key"),
			Timeout:       getEnvDuration("COMPUTE_TIMEOUT", 30*time.Second),
			RatePerSec:    getEnvFloat("COMPUTE_RATE_PER_SEC", 1),
		},
		Retry: Retry{
			MaxAttempts: getEnvInt("MAX_ATTEMPTS", 5),
			BackoffBase: getEnvDuration("BACKOFF_BASE", time.Minute),
			BackoffMax:  getEnvDuration("BACKOFF_MAX", time.Hour),
			StaleAfter:  getEnvDuration("STALE_AFTER", 6*time.Hour),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		Youtube: Youtube{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RefreshToken: getEnv("YOUTUBE_REFRESH_TOKEN", ""),
		},
	}
}

// Validate returns every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	required := map[string]string{
		"POSTGRES_URI":           c.PostgresURI,
		"COMPUTE_GENERATION_URL": c.Compute.GenerationURL,
		"COMPUTE_UPLOAD_URL":     c.Compute.UploadURL,
		"COMPUTE_API_KEY":        c.Compute.APIKey,
	}
	for key, value := range required {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is not set", key))
		}
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be at least 1"))
	}
	if c.Retry.BackoffBase <= 0 {
		errs = append(errs, errors.New("BACKOFF_BASE must be positive"))
	}
	if c.Retry.BackoffMax < c.Retry.BackoffBase {
		errs = append(errs, errors.New("BACKOFF_MAX must be at least BACKOFF_BASE"))
	}
	if c.VerifyArtifacts && !c.R2.Enabled() {
		errs = append(errs, errors.New("VERIFY_ARTIFACTS requires R2 credentials"))
	}
	return errors.Join(errs...)
}

// CallbackURL returns the absolute URL of a callback path on this server.
func (c *Config) CallbackURL(path string) string {
	return c.PublicBaseURL + path
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
