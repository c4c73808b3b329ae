// Package config loads the server configuration.
//
// WHERE DO SETTINGS COME FROM?
// Three layers, later ones winning:
//
//  1. Defaults (Default())
//  2. A .env file in the working directory, if present
//  3. The process environment
//
// godotenv.Load never overwrites a variable that is already set, so a value
// exported in the shell beats the same key in .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Blob storage backends.
const (
	BlobLocal = "local"
	BlobS3    = "s3"
)

// minSecretLength matches what auth.NewTokenService accepts.
const minSecretLength = 16

// Config holds every setting the server reads at startup.
type Config struct {
	Port   int
	DBPath string

	JWTSecret string
	TokenTTL  time.Duration
	// SecureCookies marks session cookies HTTPS-only.
	SecureCookies bool

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	BlobBackend string
	BlobDir     string
	BlobBaseURL string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string

	// NATSURL enables the cross-instance change bus when set.
	NATSURL string

	// AllowedOrigins lists Origins accepted on websocket upgrade.
	AllowedOrigins []string

	LogLevel slog.Level
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:        8080,
		DBPath:      "data/socialhub.db",
		TokenTTL:    24 * time.Hour,
		BlobBackend: BlobLocal,
		BlobDir:     "data/blobs",
		BlobBaseURL: "/blobs",
		S3Region:    "us-east-1",
		LogLevel:    slog.LevelInfo,
	}
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads .env (if any) and the environment on top of Default, then
// validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	cfg, err := FromEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv overlays the variables found by lookup onto Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DB_PATH", &cfg.DBPath)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("GITHUB_CLIENT_ID", &cfg.GitHubClientID)
	str("GITHUB_CLIENT_SECRET", &cfg.GitHubClientSecret)
	str("GITHUB_CALLBACK_URL", &cfg.GitHubCallbackURL)
	str("BLOB_BACKEND", &cfg.BlobBackend)
	str("BLOB_DIR", &cfg.BlobDir)
	str("BLOB_BASE_URL", &cfg.BlobBaseURL)
	str("S3_BUCKET", &cfg.S3Bucket)
	str("S3_REGION", &cfg.S3Region)
	str("S3_ENDPOINT", &cfg.S3Endpoint)
	str("S3_ACCESS_KEY", &cfg.S3AccessKey)
	str("S3_SECRET_KEY", &cfg.S3SecretKey)
	str("S3_PUBLIC_URL", &cfg.S3PublicURL)
	str("NATS_URL", &cfg.NATSURL)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PORT: %q is not a number", v))
		}
		cfg.Port = port
	}
	if v, ok := lookup("TOKEN_TTL"); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TOKEN_TTL: %w", err))
		}
		cfg.TokenTTL = ttl
	}
	if v, ok := lookup("SECURE_COOKIES"); ok && v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SECURE_COOKIES: %w", err))
		}
		cfg.SecureCookies = secure
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	switch c.BlobBackend {
	case BlobLocal:
		if c.BlobDir == "" {
			errs = append(errs, errors.New("BLOB_DIR is required for the local blob backend"))
		}
	case BlobS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 blob backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("BLOB_BACKEND %q is not one of local, s3", c.BlobBackend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
