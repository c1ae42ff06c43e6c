// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppConfig holds everything the engine needs at startup.
//
// Values come from a config file (memberlink.yaml), environment
// variables (MEMBERLINK_API_BASE_URL, ...), or defaults, loaded in
// LoadConfig. Durations are configurable mainly so staging builds can
// shorten the polling cadence.
type AppConfig struct {
	// Backend endpoints
	APIBaseURL string // REST API root (e.g., https://api.example.org/api)
	SocketURL  string // Realtime channel endpoint (e.g., wss://api.example.org/ws)
	MediaURL   string // Photo upload endpoint
	GeocodeURL string // Reverse-geocoding service root

	// Google OAuth configuration
	GoogleClientID     string
	GoogleClientSecret string

	// Credential store
	CredentialPath   string // Encrypted credential file location
	CredentialSecret string // Key material for the credential file

	// Flow timing
	SplashCeiling  time.Duration // Longest the splash may wait for the session check
	PollInterval   time.Duration // Verification status check cadence
	DisplayDelay   time.Duration // Success display before advancing
	ResendCooldown time.Duration // Minimum gap between verification resends

	// OTPTestCode, when set, is accepted locally without an SMS round
	// trip. Staging only; leave empty in production.
	OTPTestCode string

	// HTTPTimeout bounds individual backend calls.
	HTTPTimeout time.Duration

	LogLevel string // debug, info, warn, error
}

// LoadConfig reads configuration from file, environment, and defaults.
func LoadConfig() (*AppConfig, error) {
	v := viper.New()

	v.SetConfigName("memberlink")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/memberlink")

	v.SetEnvPrefix("MEMBERLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_base_url", "http://localhost:8080/api")
	v.SetDefault("socket_url", "ws://localhost:8080/ws")
	v.SetDefault("media_url", "http://localhost:8080/api/media")
	v.SetDefault("geocode_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("google_client_id", "")
	v.SetDefault("google_client_secret", "")
	v.SetDefault("credential_path", "./memberlink-credentials.dat")
	v.SetDefault("credential_secret", "")
	v.SetDefault("splash_ceiling", "3s")
	v.SetDefault("poll_interval", "3s")
	v.SetDefault("display_delay", "2s")
	v.SetDefault("resend_cooldown", "60s")
	v.SetDefault("otp_test_code", "")
	v.SetDefault("http_timeout", "15s")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env and defaults carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &AppConfig{
		APIBaseURL:         v.GetString("api_base_url"),
		SocketURL:          v.GetString("socket_url"),
		MediaURL:           v.GetString("media_url"),
		GeocodeURL:         v.GetString("geocode_url"),
		GoogleClientID:     v.GetString("google_client_id"),
		GoogleClientSecret: v.GetString("google_client_secret"),
		CredentialPath:     v.GetString("credential_path"),
		CredentialSecret:   v.GetString("credential_secret"),
		SplashCeiling:      v.GetDuration("splash_ceiling"),
		PollInterval:       v.GetDuration("poll_interval"),
		DisplayDelay:       v.GetDuration("display_delay"),
		ResendCooldown:     v.GetDuration("resend_cooldown"),
		OTPTestCode:        v.GetString("otp_test_code"),
		HTTPTimeout:        v.GetDuration("http_timeout"),
		LogLevel:           v.GetString("log_level"),
	}

	if cfg.CredentialSecret == "" {
		return nil, fmt.Errorf("credential_secret must be set")
	}
	return cfg, nil
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
