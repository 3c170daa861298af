package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
	"github.com/sheetvault/sheetvault/internal/metrics"
	"github.com/sheetvault/sheetvault/internal/models"
	"github.com/sheetvault/sheetvault/internal/secrets"
)

// State is the authentication lifecycle position.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthorizing
	StateAuthenticated
	StateRefreshing
	StateExpired
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	defaultLoginTimeout  = 3 * time.Minute
	defaultRefreshMargin = 60 * time.Second
)

// Config carries the provider endpoints and local policy for the manager.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string // optional; used to resolve the account email after login
	Scopes       []string

	Account       string
	LoginTimeout  time.Duration
	RefreshMargin time.Duration
}

// LoginResult is delivered once per StartLogin attempt.
type LoginResult struct {
	Credential *models.Credential
	Err        error
}

// Status is a read-only snapshot of the manager for display.
type Status struct {
	State   string    `json:"state"`
	Account string    `json:"account"`
	Email   string    `json:"email,omitempty"`
	Expiry  time.Time `json:"expiry,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Manager owns the credential lifecycle: interactive authorization through
// the loopback listener, lazy refresh, persistence through the secret
// store, and the state machine tying them together. All methods are safe
// for concurrent use; a single mutex guards every transition.
type Manager struct {
	mu       sync.Mutex
	state    State
	stateErr error
	cred     *models.Credential
	session  *models.AuthSession
	listener *callbackListener
	cancel   context.CancelFunc

	cfg     Config
	oauth   *oauth2.Config
	secrets secrets.Store
	logger  *logging.Logger
	metrics *metrics.Metrics

	httpClient *http.Client
	now        func() time.Time
}

// New builds a manager and restores any persisted credential, so a process
// restart lands in Authenticated without user interaction. A missing secret
// means Unauthenticated; a store outage is returned as an error rather
// than silently treated as logged out.
func New(cfg Config, store secrets.Store, logger *logging.Logger, m *metrics.Metrics) (*Manager, error) {
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = defaultLoginTimeout
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = defaultRefreshMargin
	}

	mgr := &Manager{
		state:   StateUnauthenticated,
		cfg:     cfg,
		secrets: store,
		logger:  logger,
		metrics: m,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}

	if err := mgr.restore(); err != nil {
		return nil, err
	}
	return mgr, nil
}

// restore loads the persisted credential for the configured account.
func (m *Manager) restore() error {
	blob, err := m.secrets.Load(m.cfg.Account)
	if err != nil {
		var notFound *errors.ErrSecretNotFound
		if stderrors.As(err, &notFound) {
			return nil
		}
		return err
	}

	cred, err := models.UnmarshalCredential(blob)
	if err != nil {
		// Corrupt blob. Treat as logged out rather than refusing to start.
		m.logger.Warn("discarding unreadable stored credential", "account", m.cfg.Account, "error", err.Error())
		return nil
	}

	m.cred = cred
	m.state = StateAuthenticated
	m.logger.Info("restored credential", "account", m.cfg.Account, "expiry", cred.Expiry.Format(time.RFC3339))
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot for the status command.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:   m.state.String(),
		Account: m.cfg.Account,
	}
	if m.cred != nil {
		st.Email = m.cred.Email
		st.Expiry = m.cred.Expiry
	}
	if m.stateErr != nil {
		st.Error = m.stateErr.Error()
	}
	return st
}

// StartLogin begins one interactive authorization attempt. It binds the
// loopback listener, returns the URL the user must open in a browser, and
// delivers exactly one LoginResult on the returned channel when the
// attempt completes, times out, or is cancelled.
func (m *Manager) StartLogin(ctx context.Context) (string, <-chan LoginResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAuthorizing {
		return "", nil, &errors.ErrAuthInit{Err: fmt.Errorf("a login attempt is already in progress")}
	}

	deadline := m.now().Add(m.cfg.LoginTimeout)
	session := models.NewAuthSession("", deadline)

	listener, err := newCallbackListener(session.State, m.logger)
	if err != nil {
		return "", nil, err
	}
	session.RedirectURL = listener.RedirectURL()

	oc := *m.oauth
	oc.RedirectURL = session.RedirectURL
	authURL := oc.AuthCodeURL(session.State, oauth2.AccessTypeOffline)

	loginCtx, cancel := context.WithDeadline(ctx, deadline)

	m.session = session
	m.listener = listener
	m.cancel = cancel
	m.state = StateAuthorizing
	m.stateErr = nil

	m.logger.Info("login started",
		"session_id", session.ID,
		"redirect_url", session.RedirectURL,
		"deadline", deadline.Format(time.RFC3339))

	done := make(chan LoginResult, 1)
	go m.awaitCallback(loginCtx, cancel, &oc, listener, session, done)
	return authURL, done, nil
}

// awaitCallback waits for the redirect (or timeout/cancellation), exchanges
// the code, persists the credential and completes the state transition.
func (m *Manager) awaitCallback(ctx context.Context, cancel context.CancelFunc, oc *oauth2.Config, l *callbackListener, session *models.AuthSession, done chan<- LoginResult) {
	defer cancel()
	defer l.Close()

	select {
	case res := <-l.result:
		if res.err != nil {
			m.failLogin(done, res.err)
			return
		}
		m.completeLogin(ctx, oc, res.code, done)

	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			m.failLogin(done, &errors.ErrLoginTimeout{Deadline: session.Deadline})
		} else {
			m.failLogin(done, &errors.ErrLoginCancelled{})
		}
	}
}

func (m *Manager) completeLogin(ctx context.Context, oc *oauth2.Config, code string, done chan<- LoginResult) {
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		m.failLogin(done, &errors.ErrAuthExchange{Err: err})
		return
	}

	cred := models.CredentialFromToken(tok, m.cfg.Account, m.cfg.Scopes)
	if email, err := m.fetchEmail(ctx, tok); err != nil {
		m.logger.Warn("could not resolve account email", "error", err.Error())
	} else {
		cred.Email = email
	}

	blob, err := cred.Marshal()
	if err != nil {
		m.failLogin(done, &errors.ErrAuthExchange{Err: err})
		return
	}
	// Persist before the state transition: a crash here means the next run
	// starts unauthenticated, never authenticated-without-a-secret.
	if err := m.secrets.Save(m.cfg.Account, blob); err != nil {
		m.failLogin(done, err)
		return
	}

	m.mu.Lock()
	if m.state != StateAuthorizing {
		// Logged out while the exchange was in flight; honor the logout.
		m.mu.Unlock()
		if delErr := m.secrets.Delete(m.cfg.Account); delErr != nil {
			m.logger.Warn("could not remove credential persisted during logout", "error", delErr.Error())
		}
		done <- LoginResult{Err: &errors.ErrLoginCancelled{}}
		return
	}
	m.cred = cred
	m.state = StateAuthenticated
	m.stateErr = nil
	m.session = nil
	m.listener = nil
	m.cancel = nil
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.LoginAttempts.WithLabelValues("success").Inc()
	}
	m.logger.Info("login complete", "account", m.cfg.Account, "email", cred.Email)
	done <- LoginResult{Credential: cred}
}

func (m *Manager) failLogin(done chan<- LoginResult, err error) {
	m.mu.Lock()
	// Only transition if the attempt still owns the machine; a Logout that
	// raced the failure already moved it to Unauthenticated.
	if m.state == StateAuthorizing {
		m.state = StateError
		m.stateErr = err
	}
	m.session = nil
	m.listener = nil
	m.cancel = nil
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.LoginAttempts.WithLabelValues(loginFailureLabel(err)).Inc()
	}
	m.logger.Warn("login failed", "error", err.Error())
	done <- LoginResult{Err: err}
}

func loginFailureLabel(err error) string {
	var (
		forgery   *errors.ErrAuthForgery
		cancelled *errors.ErrLoginCancelled
		timeout   *errors.ErrLoginTimeout
	)
	switch {
	case stderrors.As(err, &forgery):
		return "forgery"
	case stderrors.As(err, &cancelled):
		return "cancelled"
	case stderrors.As(err, &timeout):
		return "timeout"
	default:
		return "error"
	}
}

// fetchEmail asks the provider's userinfo endpoint for the account email.
// Best effort: the credential works without it.
func (m *Manager) fetchEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	if m.cfg.UserInfoURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.UserInfoURL, nil)
	if err != nil {
		return "", err
	}
	tok.SetAuthHeader(req)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return info.Email, nil
}

// CancelLogin aborts an in-flight authorization attempt. No-op outside
// Authorizing.
func (m *Manager) CancelLogin() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// GetValidCredential returns a credential guaranteed usable for at least
// the refresh margin, refreshing lazily when needed. A revoked refresh
// token moves the manager to Expired; transient refresh failures leave it
// Authenticated with the stale token so a later call can retry.
func (m *Manager) GetValidCredential(ctx context.Context) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateAuthenticated:
	case StateRefreshing:
		// Unreachable while the mutex is held for the whole refresh, but
		// kept explicit so the contract survives restructuring.
		return nil, &errors.ErrAuthRequired{State: m.state.String()}
	default:
		return nil, &errors.ErrAuthRequired{State: m.state.String()}
	}

	if m.cred.Valid(m.now(), m.cfg.RefreshMargin) {
		cp := *m.cred
		return &cp, nil
	}

	m.state = StateRefreshing
	m.logger.Debug("refreshing access token", "account", m.cfg.Account)

	tok, err := m.oauth.TokenSource(ctx, m.cred.Token()).Token()
	if err != nil {
		if isRevoked(err) {
			m.state = StateExpired
			m.cred = nil
			if m.metrics != nil {
				m.metrics.AuthRefreshes.WithLabelValues("revoked").Inc()
			}
			return nil, &errors.ErrRefreshFailed{Revoked: true, Err: err}
		}
		m.state = StateAuthenticated
		if m.metrics != nil {
			m.metrics.AuthRefreshes.WithLabelValues("error").Inc()
		}
		return nil, &errors.ErrRefreshFailed{Err: err}
	}

	updated := *m.cred
	updated.UpdateFromToken(tok)

	blob, err := updated.Marshal()
	if err == nil {
		err = m.secrets.Save(m.cfg.Account, blob)
	}
	if err != nil {
		// The refreshed token is not persisted, so keep the old credential
		// in memory and report the store failure.
		m.state = StateAuthenticated
		if m.metrics != nil {
			m.metrics.AuthRefreshes.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	m.cred = &updated
	m.state = StateAuthenticated
	if m.metrics != nil {
		m.metrics.AuthRefreshes.WithLabelValues("success").Inc()
	}
	m.logger.Info("access token refreshed", "account", m.cfg.Account, "expiry", updated.Expiry.Format(time.RFC3339))

	cp := updated
	return &cp, nil
}

// isRevoked reports whether a refresh failure means the refresh token is
// permanently unusable, as opposed to a transient network or server error.
func isRevoked(err error) bool {
	var rerr *oauth2.RetrieveError
	if !stderrors.As(err, &rerr) {
		return false
	}
	if rerr.ErrorCode == "invalid_grant" {
		return true
	}
	if rerr.Response != nil {
		code := rerr.Response.StatusCode
		return code == http.StatusBadRequest || code == http.StatusUnauthorized
	}
	return false
}

// Logout deletes the persisted credential and returns to Unauthenticated.
// Idempotent: logging out while already logged out succeeds. An in-flight
// login attempt is cancelled first.
func (m *Manager) Logout() error {
	m.CancelLogin()

	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.secrets.Delete(m.cfg.Account)
	if err != nil {
		var notFound *errors.ErrSecretNotFound
		if !stderrors.As(err, &notFound) {
			return err
		}
	}

	m.cred = nil
	m.state = StateUnauthenticated
	m.stateErr = nil
	m.logger.Info("logged out", "account", m.cfg.Account)
	return nil
}
