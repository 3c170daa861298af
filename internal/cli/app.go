package cli

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetvault/sheetvault/internal/auth"
	"github.com/sheetvault/sheetvault/internal/config"
	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
	"github.com/sheetvault/sheetvault/internal/metrics"
	"github.com/sheetvault/sheetvault/internal/remote"
	"github.com/sheetvault/sheetvault/internal/secrets"
	"github.com/sheetvault/sheetvault/internal/store"
	syncengine "github.com/sheetvault/sheetvault/internal/sync"
)

const metricsNamespace = "sheetvault"

// app wires the components a command needs. Commands that never touch the
// database use newAuthApp; everything else uses newApp and must Close.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	secrets secrets.Store
	auth    *auth.Manager
	store   *store.Store
	remote  *remote.Client
	engine  *syncengine.Engine
}

// loadConfig reads the config file named by --config. A missing file at
// the default location falls back to built-in defaults; a missing file the
// user asked for explicitly is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	logger := logging.NewLogger(logging.WithLevel(logging.LevelError))
	loader := config.NewLoader(globalFlags.Config, logger)
	cfg, err := loader.Load()
	if err != nil {
		var notFound *errors.ErrConfigNotFound
		if stderrors.As(err, &notFound) && !cmd.Flags().Changed("config") {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.ParseLevel(cfg.Log.Level)
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	return logging.NewLogger(logging.WithLevel(level))
}

// newAuthApp builds the slice of the app needed by login and logout:
// config, secret store and the auth manager.
func newAuthApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = globalFlags.DBPath
	}

	logger := newLogger(cfg)
	m := metrics.NewMetrics(metricsNamespace)
	secretStore := secrets.NewKeyring()

	mgr, err := auth.New(auth.Config{
		ClientID:      cfg.OAuth.ClientID,
		ClientSecret:  cfg.OAuth.ClientSecret,
		AuthURL:       cfg.OAuth.AuthURL,
		TokenURL:      cfg.OAuth.TokenURL,
		UserInfoURL:   cfg.OAuth.UserInfoURL,
		Scopes:        cfg.OAuth.Scopes,
		Account:       cfg.Auth.Account,
		LoginTimeout:  cfg.Auth.LoginTimeout,
		RefreshMargin: cfg.Auth.RefreshMargin,
	}, secretStore, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		secrets: secretStore,
		auth:    mgr,
	}, nil
}

// newApp builds the full application: auth, encrypted store, remote client
// and sync engine.
func newApp(cmd *cobra.Command) (*app, error) {
	a, err := newAuthApp(cmd)
	if err != nil {
		return nil, err
	}

	key, err := secrets.EncryptionKey(a.secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain database encryption key: %w", err)
	}

	st, err := store.Open(a.cfg.Database.Path, key, a.logger, store.Options{
		PoolSize:       a.cfg.Database.PoolSize,
		AcquireTimeout: a.cfg.Database.AcquireTimeout,
	})
	if err != nil {
		return nil, err
	}

	rc := remote.NewClient(a.cfg.Remote.BaseURL, a.logger,
		remote.WithMetrics(a.metrics),
		remote.WithHTTPClient(newRemoteHTTPClient(a.cfg.Remote.Timeout)),
	)

	a.store = st
	a.remote = rc
	a.engine = syncengine.NewEngine(st, rc, a.auth, a.logger, a.metrics, syncengine.Options{
		RetryAttempts: a.cfg.Sync.RetryAttempts,
		RetryBackoff:  a.cfg.Sync.RetryBackoff,
		ThumbnailTTL:  a.cfg.Sync.ThumbnailTTL,
	})
	return a, nil
}

func newRemoteHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("database close failed", "error", err.Error())
		}
	}
}
