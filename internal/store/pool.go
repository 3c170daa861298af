package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
)

// DefaultAcquireTimeout bounds how long Acquire waits for a free handle
// when the caller's context has no deadline of its own.
const DefaultAcquireTimeout = 5 * time.Second

// Pool hands out bounded, exclusive connection handles to the encrypted
// store. Readers may proceed concurrently; writers serialize through
// WithTx's write lock so a partial sync can never interleave with another
// writer.
type Pool struct {
	db             *sql.DB
	permits        chan struct{}
	writeMu        sync.Mutex
	acquireTimeout time.Duration
	logger         *logging.Logger
}

// NewPool wraps an open database with a bounded permit set.
func NewPool(db *sql.DB, size int, acquireTimeout time.Duration, logger *logging.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	db.SetMaxOpenConns(size)

	permits := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		permits <- struct{}{}
	}

	return &Pool{
		db:             db,
		permits:        permits,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

// Handle is an exclusive-use connection checked out from the pool. It must
// be released on every exit path; Release is idempotent so a deferred call
// is always safe.
type Handle struct {
	conn     *sql.Conn
	pool     *Pool
	mu       sync.Mutex
	released bool
}

// Conn exposes the underlying connection.
func (h *Handle) Conn() *sql.Conn {
	return h.conn
}

// Release returns the handle to the pool.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return
	}
	h.released = true

	if err := h.conn.Close(); err != nil {
		h.pool.logger.Warn("failed to close pooled connection", "error", err.Error())
	}
	h.pool.permits <- struct{}{}
}

// Acquire blocks until a handle is free or the deadline passes, returning
// ErrPoolExhausted on timeout. If the caller's context ends first, its
// error is returned instead.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	select {
	case <-p.permits:
	case <-waitCtx.Done():
		// A cancelled caller is not pool pressure; report it as such.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errors.ErrPoolExhausted{Timeout: p.acquireTimeout}
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.permits <- struct{}{}
		return nil, &errors.ErrDatabaseQuery{Operation: "acquire connection", Err: err}
	}

	return &Handle{conn: conn, pool: p}, nil
}

// WithTx runs fn inside a write transaction on a pooled handle. The
// transaction commits when fn returns nil and rolls back otherwise. Once fn
// starts, the transaction always runs to commit or rollback; callers wanting
// cancellation must check their context before calling.
func (p *Pool) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	handle, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer handle.Release()

	tx, err := handle.Conn().BeginTx(ctx, nil)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.Error("rollback failed", "error", rbErr.Error())
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit transaction", Err: err}
	}
	return nil
}

// Close shuts down the underlying database.
func (p *Pool) Close() error {
	return p.db.Close()
}
