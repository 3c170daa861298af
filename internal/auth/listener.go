package auth

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
)

// callbackResult is what one authorization attempt produced: either an
// authorization code or a terminal error.
type callbackResult struct {
	code string
	err  error
}

// callbackListener is the transient loopback HTTP endpoint the provider
// redirects back to. It lives for exactly one authorization attempt and
// accepts exactly one result.
type callbackListener struct {
	srv    *http.Server
	addr   string
	result chan callbackResult
	once   sync.Once
	logger *logging.Logger
}

// newCallbackListener binds an ephemeral loopback port and serves the
// redirect endpoint. state is the anti-forgery token the callback must echo.
func newCallbackListener(state string, logger *logging.Logger) (*callbackListener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, &errors.ErrAuthInit{Err: err}
	}

	l := &callbackListener{
		addr:   fmt.Sprintf("http://%s/oauth/callback", ln.Addr().String()),
		result: make(chan callbackResult, 1),
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.GET("/oauth/callback", func(c *gin.Context) {
		if c.Query("state") != state {
			l.logger.Warn("callback state mismatch", "remote_addr", c.ClientIP())
			c.JSON(http.StatusForbidden, gin.H{"error": "state mismatch"})
			l.deliver(callbackResult{err: &errors.ErrAuthForgery{}})
			return
		}

		if errParam := c.Query("error"); errParam != "" {
			c.String(http.StatusOK, "Authorization was not granted. You can close this window.")
			l.deliver(callbackResult{err: &errors.ErrAuthExchange{Err: fmt.Errorf("provider returned error: %s", errParam)}})
			return
		}

		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
			l.deliver(callbackResult{err: &errors.ErrAuthExchange{Err: fmt.Errorf("callback carried no authorization code")}})
			return
		}

		c.String(http.StatusOK, "Login complete. You can close this window and return to sheetvault.")
		l.deliver(callbackResult{code: code})
	})

	l.srv = &http.Server{Handler: engine}
	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.Error("callback listener stopped", "error", err.Error())
		}
	}()

	return l, nil
}

// deliver publishes the first result; later callbacks are ignored.
func (l *callbackListener) deliver(r callbackResult) {
	l.once.Do(func() {
		l.result <- r
	})
}

// RedirectURL is the redirect endpoint registered with the provider for
// this attempt.
func (l *callbackListener) RedirectURL() string {
	return l.addr
}

// Close tears down the listener.
func (l *callbackListener) Close() {
	if err := l.srv.Close(); err != nil {
		l.logger.Debug("callback listener close", "error", err.Error())
	}
}
