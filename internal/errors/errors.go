package errors

import (
	"fmt"
	"time"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Auth errors

// ErrAuthInit indicates the interactive login flow could not start,
// typically because the loopback callback listener failed to bind.
type ErrAuthInit struct {
	Err error
}

func (e *ErrAuthInit) Error() string {
	return fmt.Sprintf("failed to start login flow: %v", e.Err)
}

func (e *ErrAuthInit) Unwrap() error {
	return e.Err
}

// ErrAuthForgery indicates the authorization callback carried a state token
// that does not match the live session. Treated as a security event, never
// retried silently.
type ErrAuthForgery struct{}

func (e *ErrAuthForgery) Error() string {
	return "authorization callback state mismatch: possible forgery"
}

// ErrAuthExchange indicates the authorization code could not be exchanged
// for a credential. Retryable by restarting login.
type ErrAuthExchange struct {
	Err error
}

func (e *ErrAuthExchange) Error() string {
	return fmt.Sprintf("authorization code exchange failed: %v", e.Err)
}

func (e *ErrAuthExchange) Unwrap() error {
	return e.Err
}

// ErrAuthRequired indicates no valid credential is available and the caller
// must trigger an interactive login.
type ErrAuthRequired struct {
	State string
}

func (e *ErrAuthRequired) Error() string {
	if e.State != "" {
		return fmt.Sprintf("authentication required (current state: %s)", e.State)
	}
	return "authentication required"
}

// ErrRefreshFailed indicates a token refresh failed. Revoked distinguishes a
// revoked or invalid refresh token from a transient network failure; only
// the former forces re-authorization.
type ErrRefreshFailed struct {
	Revoked bool
	Err     error
}

func (e *ErrRefreshFailed) Error() string {
	if e.Revoked {
		return fmt.Sprintf("token refresh failed: refresh token revoked or invalid: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *ErrRefreshFailed) Unwrap() error {
	return e.Err
}

type ErrLoginCancelled struct{}

func (e *ErrLoginCancelled) Error() string {
	return "login cancelled"
}

type ErrLoginTimeout struct {
	Deadline time.Time
}

func (e *ErrLoginTimeout) Error() string {
	return fmt.Sprintf("login timed out waiting for authorization callback (deadline %s)", e.Deadline.Format(time.RFC3339))
}

// Secret store errors

// ErrSecretNotFound indicates no secret exists for the account. Distinct
// from ErrStoreUnavailable: absence means "never authenticated", not an
// outage.
type ErrSecretNotFound struct {
	Account string
}

func (e *ErrSecretNotFound) Error() string {
	return fmt.Sprintf("no secret stored for account %s", e.Account)
}

type ErrStoreUnavailable struct {
	Err error
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("secret store unavailable: %v", e.Err)
}

func (e *ErrStoreUnavailable) Unwrap() error {
	return e.Err
}

// Remote errors

type ErrUnauthorized struct {
	Err error
}

func (e *ErrUnauthorized) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote rejected credential: %v", e.Err)
	}
	return "remote rejected credential"
}

func (e *ErrUnauthorized) Unwrap() error {
	return e.Err
}

type ErrSourceNotFound struct {
	SourceID string
}

func (e *ErrSourceNotFound) Error() string {
	return fmt.Sprintf("remote source not found: %s", e.SourceID)
}

type ErrRemoteUnavailable struct {
	Status int
	Err    error
}

func (e *ErrRemoteUnavailable) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote unavailable (status %d)", e.Status)
	}
	return fmt.Sprintf("remote unavailable: %v", e.Err)
}

func (e *ErrRemoteUnavailable) Unwrap() error {
	return e.Err
}

// Sync errors

type ErrSyncInProgress struct {
	ConfigID int64
}

func (e *ErrSyncInProgress) Error() string {
	return fmt.Sprintf("sync already in progress for source config %d", e.ConfigID)
}

type ErrNoSourceConfig struct{}

func (e *ErrNoSourceConfig) Error() string {
	return "no data source configured"
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// ErrPoolExhausted indicates no connection handle became available before
// the acquire deadline.
type ErrPoolExhausted struct {
	Timeout time.Duration
}

func (e *ErrPoolExhausted) Error() string {
	return fmt.Sprintf("connection pool exhausted after %s", e.Timeout)
}

// ErrSchemaCorruption is fatal: the on-disk schema failed its integrity
// check. Surfaced to the caller, never auto-repaired.
type ErrSchemaCorruption struct {
	Detail string
}

func (e *ErrSchemaCorruption) Error() string {
	return fmt.Sprintf("database schema corruption detected: %s", e.Detail)
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}
