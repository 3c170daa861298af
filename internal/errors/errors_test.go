package errors

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigErrors(t *testing.T) {
	notFound := &ErrConfigNotFound{Path: "/tmp/config.yaml"}
	if !strings.Contains(notFound.Error(), "config file not found") {
		t.Fatalf("unexpected error message: %s", notFound.Error())
	}
	if !strings.Contains(notFound.Error(), notFound.Path) {
		t.Fatalf("expected path in error message: %s", notFound.Error())
	}

	base := errors.New("bad yaml")
	parse := &ErrConfigParse{Err: base}
	if !strings.Contains(parse.Error(), "failed to parse YAML") {
		t.Fatalf("unexpected parse message: %s", parse.Error())
	}
	if !errors.Is(parse, base) {
		t.Fatalf("expected unwrap to base error")
	}

	validation := &ErrConfigValidation{Err: base}
	if !strings.Contains(validation.Error(), "config validation failed") {
		t.Fatalf("unexpected validation message: %s", validation.Error())
	}
	if !errors.Is(validation, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestAuthErrors(t *testing.T) {
	base := errors.New("bind: address already in use")

	initErr := &ErrAuthInit{Err: base}
	if !strings.Contains(initErr.Error(), "failed to start login flow") {
		t.Fatalf("unexpected init message: %s", initErr.Error())
	}
	if !errors.Is(initErr, base) {
		t.Fatalf("expected unwrap to base error")
	}

	forgery := &ErrAuthForgery{}
	if !strings.Contains(forgery.Error(), "possible forgery") {
		t.Fatalf("unexpected forgery message: %s", forgery.Error())
	}

	required := &ErrAuthRequired{State: "expired"}
	if !strings.Contains(required.Error(), "expired") {
		t.Fatalf("expected state in message: %s", required.Error())
	}
	if (&ErrAuthRequired{}).Error() != "authentication required" {
		t.Fatalf("unexpected bare message")
	}

	revoked := &ErrRefreshFailed{Revoked: true, Err: base}
	if !strings.Contains(revoked.Error(), "revoked or invalid") {
		t.Fatalf("expected revoked marker: %s", revoked.Error())
	}
	transient := &ErrRefreshFailed{Err: base}
	if strings.Contains(transient.Error(), "revoked") {
		t.Fatalf("transient failure must not claim revocation: %s", transient.Error())
	}

	timeout := &ErrLoginTimeout{Deadline: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	if !strings.Contains(timeout.Error(), "2025-01-02T03:04:05Z") {
		t.Fatalf("expected deadline in message: %s", timeout.Error())
	}
}

func TestSecretStoreErrors(t *testing.T) {
	notFound := &ErrSecretNotFound{Account: "default"}
	if !strings.Contains(notFound.Error(), "default") {
		t.Fatalf("expected account in message: %s", notFound.Error())
	}

	base := errors.New("dbus not running")
	unavailable := &ErrStoreUnavailable{Err: base}
	if !strings.Contains(unavailable.Error(), "secret store unavailable") {
		t.Fatalf("unexpected message: %s", unavailable.Error())
	}
	if !errors.Is(unavailable, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestRemoteErrors(t *testing.T) {
	unavailable := &ErrRemoteUnavailable{Status: 503}
	if !strings.Contains(unavailable.Error(), "503") {
		t.Fatalf("expected status in message: %s", unavailable.Error())
	}

	base := errors.New("connection refused")
	transport := &ErrRemoteUnavailable{Err: base}
	if !errors.Is(transport, base) {
		t.Fatalf("expected unwrap to base error")
	}

	notFound := &ErrSourceNotFound{SourceID: "sheet-1"}
	if !strings.Contains(notFound.Error(), "sheet-1") {
		t.Fatalf("expected source id in message: %s", notFound.Error())
	}
}

func TestDatabaseErrors(t *testing.T) {
	base := errors.New("db")

	op := &ErrDatabaseOpen{Path: "/tmp/db.sqlite", Err: base}
	if !strings.Contains(op.Error(), "failed to open database") {
		t.Fatalf("unexpected open message: %s", op.Error())
	}
	if !errors.Is(op, base) {
		t.Fatalf("expected unwrap to base error")
	}

	migration := &ErrDatabaseMigration{Version: 2, Err: base}
	if !strings.Contains(migration.Error(), "database migration 2 failed") {
		t.Fatalf("unexpected migration message: %s", migration.Error())
	}
	if !errors.Is(migration, base) {
		t.Fatalf("expected unwrap to base error")
	}

	query := &ErrDatabaseQuery{Operation: "upsert record", Err: base}
	if !strings.Contains(query.Error(), "database query failed") {
		t.Fatalf("unexpected query message: %s", query.Error())
	}
	if !errors.Is(query, base) {
		t.Fatalf("expected unwrap to base error")
	}

	exhausted := &ErrPoolExhausted{Timeout: 5 * time.Second}
	if !strings.Contains(exhausted.Error(), "5s") {
		t.Fatalf("expected timeout in message: %s", exhausted.Error())
	}

	corrupt := &ErrSchemaCorruption{Detail: "records index missing"}
	if !strings.Contains(corrupt.Error(), "records index missing") {
		t.Fatalf("expected detail in message: %s", corrupt.Error())
	}
}

func TestSyncErrors(t *testing.T) {
	inProgress := &ErrSyncInProgress{ConfigID: 1}
	if !strings.Contains(inProgress.Error(), "sync already in progress") {
		t.Fatalf("unexpected message: %s", inProgress.Error())
	}

	if (&ErrNoSourceConfig{}).Error() != "no data source configured" {
		t.Fatalf("unexpected message")
	}
}
