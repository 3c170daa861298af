package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string         `yaml:"version"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Remote   RemoteConfig   `yaml:"remote"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Sync     SyncConfig     `yaml:"sync"`
	Log      LogConfig      `yaml:"log"`
}

// OAuthConfig identifies the application to the provider.
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"userinfo_url"`
	Scopes       []string `yaml:"scopes"`
}

// RemoteConfig points at the spreadsheet provider's API.
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig controls the local cache database.
type DatabaseConfig struct {
	Path           string        `yaml:"path"`
	PoolSize       int           `yaml:"pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// AuthConfig controls the credential lifecycle.
type AuthConfig struct {
	Account       string        `yaml:"account"`
	LoginTimeout  time.Duration `yaml:"login_timeout"`
	RefreshMargin time.Duration `yaml:"refresh_margin"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	ThumbnailTTL  time.Duration `yaml:"thumbnail_ttl"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultDatabasePath returns the per-user default cache location.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sheetvault.db"
	}
	return filepath.Join(home, ".sheetvault", "vault.db")
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Version: "1",
		OAuth: OAuthConfig{
			AuthURL:     "https://accounts.google.com/o/oauth2/auth",
			TokenURL:    "https://oauth2.googleapis.com/token",
			UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			Scopes: []string{
				"https://www.googleapis.com/auth/drive.readonly",
				"https://www.googleapis.com/auth/spreadsheets.readonly",
				"email",
			},
		},
		Remote: RemoteConfig{
			BaseURL: "https://www.googleapis.com",
			Timeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path:           DefaultDatabasePath(),
			PoolSize:       4,
			AcquireTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			Account:       "default",
			LoginTimeout:  3 * time.Minute,
			RefreshMargin: 60 * time.Second,
		},
		Sync: SyncConfig{
			RetryAttempts: 3,
			RetryBackoff:  500 * time.Millisecond,
			ThumbnailTTL:  24 * time.Hour,
			WatchInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.OAuth.Validate(); err != nil {
		return fmt.Errorf("oauth: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (o *OAuthConfig) Validate() error {
	if o.AuthURL == "" {
		return fmt.Errorf("auth_url is required")
	}
	if o.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if len(o.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	return nil
}

func (r *RemoteConfig) Validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if r.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}
	if d.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}
	if d.AcquireTimeout < 0 {
		return fmt.Errorf("acquire_timeout cannot be negative")
	}
	return nil
}

func (a *AuthConfig) Validate() error {
	if a.Account == "" {
		return fmt.Errorf("account is required")
	}
	if a.LoginTimeout <= 0 {
		return fmt.Errorf("login_timeout must be positive")
	}
	if a.RefreshMargin <= 0 {
		return fmt.Errorf("refresh_margin must be positive")
	}
	return nil
}

func (s *SyncConfig) Validate() error {
	if s.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1")
	}
	if s.RetryBackoff <= 0 {
		return fmt.Errorf("retry_backoff must be positive")
	}
	if s.ThumbnailTTL <= 0 {
		return fmt.Errorf("thumbnail_ttl must be positive")
	}
	if s.WatchInterval < time.Second {
		return fmt.Errorf("watch_interval must be at least 1s")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
}

func (l *LogConfig) Validate() error {
	if !validLogLevels[l.Level] {
		return fmt.Errorf("invalid log level: %q", l.Level)
	}
	return nil
}
