package sync

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
	"github.com/sheetvault/sheetvault/internal/metrics"
	"github.com/sheetvault/sheetvault/internal/models"
	"github.com/sheetvault/sheetvault/internal/remote"
	"github.com/sheetvault/sheetvault/internal/store"
)

// RemoteClient is the slice of the remote API the engine needs.
type RemoteClient interface {
	ListSources(ctx context.Context, cred *models.Credential) ([]models.SourceDescriptor, error)
	ReadRows(ctx context.Context, cred *models.Credential, spreadsheetID, sheetRange string, sinceRow int64) ([]models.RawRow, error)
	FetchThumbnail(ctx context.Context, cred *models.Credential, thumbnailURL string) ([]byte, error)
}

// CredentialSource hands out credentials valid for at least the refresh
// margin. Implemented by the auth manager.
type CredentialSource interface {
	GetValidCredential(ctx context.Context) (*models.Credential, error)
}

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultThumbnailTTL  = 24 * time.Hour
)

// Options tunes retry and caching behavior.
type Options struct {
	RetryAttempts int
	RetryBackoff  time.Duration
	ThumbnailTTL  time.Duration
}

// Engine drives incremental sync: fetch rows past the watermark, upsert
// them in one transaction, advance the watermark. One run per source
// config at a time; a second concurrent SyncNow fails fast.
type Engine struct {
	store   *store.Store
	remote  RemoteClient
	creds   CredentialSource
	logger  *logging.Logger
	metrics *metrics.Metrics

	retryAttempts int
	retryBackoff  time.Duration
	thumbnailTTL  time.Duration

	mu       sync.Mutex
	inFlight map[int64]bool

	now func() time.Time
}

// NewEngine builds a sync engine.
func NewEngine(st *store.Store, rc RemoteClient, cs CredentialSource, logger *logging.Logger, m *metrics.Metrics, opts Options) *Engine {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.ThumbnailTTL <= 0 {
		opts.ThumbnailTTL = defaultThumbnailTTL
	}

	return &Engine{
		store:         st,
		remote:        rc,
		creds:         cs,
		logger:        logger,
		metrics:       m,
		retryAttempts: opts.RetryAttempts,
		retryBackoff:  opts.RetryBackoff,
		thumbnailTTL:  opts.ThumbnailTTL,
		inFlight:      make(map[int64]bool),
		now:           time.Now,
	}
}

// SyncNow runs one incremental sync for the active source config.
func (e *Engine) SyncNow(ctx context.Context) (*models.SyncResult, error) {
	cfg, err := e.store.GetSourceConfig(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.inFlight[cfg.ID] {
		e.mu.Unlock()
		return nil, &errors.ErrSyncInProgress{ConfigID: cfg.ID}
	}
	e.inFlight[cfg.ID] = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inFlight, cfg.ID)
		e.mu.Unlock()
	}()

	start := e.now()
	result, err := e.run(ctx, cfg)
	if err != nil {
		if e.metrics != nil {
			e.metrics.SyncRuns.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	result.Duration = e.now().Sub(start)
	if e.metrics != nil {
		e.metrics.SyncRuns.WithLabelValues("success").Inc()
		e.metrics.SyncDuration.Observe(result.Duration.Seconds())
	}

	e.logger.Info("sync complete",
		"source_config_id", cfg.ID,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"watermark", result.Watermark,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

func (e *Engine) run(ctx context.Context, cfg *models.SourceConfig) (*models.SyncResult, error) {
	cred, err := e.creds.GetValidCredential(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.fetchRows(ctx, cred, cfg)
	if err != nil {
		return nil, err
	}

	records := e.parseRows(cfg, rows)

	result := &models.SyncResult{Watermark: cfg.Watermark}
	err = e.store.Pool().WithTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			outcome, err := e.store.UpsertRecordTx(tx, rec)
			if err != nil {
				return err
			}
			switch outcome {
			case store.RecordInserted:
				result.Inserted++
			case store.RecordUpdated:
				result.Updated++
			case store.RecordUnchanged:
				result.Unchanged++
			}
			if rec.NaturalKey > result.Watermark {
				result.Watermark = rec.NaturalKey
			}
		}
		if result.Watermark != cfg.Watermark {
			return e.store.UpdateWatermarkTx(tx, cfg.ID, result.Watermark)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RecordsSynced.WithLabelValues("inserted").Add(float64(result.Inserted))
		e.metrics.RecordsSynced.WithLabelValues("updated").Add(float64(result.Updated))
		e.metrics.RecordsSynced.WithLabelValues("unchanged").Add(float64(result.Unchanged))
	}
	return result, nil
}

// fetchRows reads rows past the watermark, retrying transient failures
// with exponential backoff and honoring server-provided retry delays. An
// authorization failure triggers one credential refresh before giving up.
func (e *Engine) fetchRows(ctx context.Context, cred *models.Credential, cfg *models.SourceConfig) ([]models.RawRow, error) {
	refreshed := false
	var lastErr error

	for attempt := 0; attempt < e.retryAttempts; attempt++ {
		rows, err := e.remote.ReadRows(ctx, cred, cfg.SpreadsheetID, cfg.SheetRange, cfg.Watermark)
		if err == nil {
			return rows, nil
		}

		var unauth *errors.ErrUnauthorized
		if stderrors.As(err, &unauth) {
			if refreshed {
				return nil, err
			}
			refreshed = true
			cred, err = e.creds.GetValidCredential(ctx)
			if err != nil {
				return nil, err
			}
			// The refresh itself is not a fetch attempt.
			attempt--
			continue
		}

		var delay time.Duration
		var rateLimited *remote.RateLimitError
		var unavailable *errors.ErrRemoteUnavailable
		switch {
		case stderrors.As(err, &rateLimited):
			delay = rateLimited.RetryAfter
			if delay <= 0 {
				delay = e.backoffDelay(attempt)
			}
		case stderrors.As(err, &unavailable):
			delay = e.backoffDelay(attempt)
		default:
			return nil, err
		}

		lastErr = err
		if attempt == e.retryAttempts-1 {
			break
		}

		e.logger.Warn("fetch failed, retrying",
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (e *Engine) backoffDelay(attempt int) time.Duration {
	return e.retryBackoff * (1 << uint(attempt))
}

// parseRows converts raw cells to records, dropping malformed rows and
// deduplicating by natural key with the last occurrence winning.
func (e *Engine) parseRows(cfg *models.SourceConfig, rows []models.RawRow) []*models.Record {
	byKey := make(map[int64]int)
	var out []*models.Record
	var resent int64

	for _, row := range rows {
		if row.Index <= cfg.Watermark {
			// Already synced; a well-behaved server does not resend these.
			resent++
			continue
		}
		rec, err := rowToRecord(cfg.ID, row)
		if err != nil {
			e.logger.Warn("skipping malformed row", "row_index", row.Index, "error", err.Error())
			continue
		}
		if i, seen := byKey[rec.NaturalKey]; seen {
			out[i] = rec
			continue
		}
		byKey[rec.NaturalKey] = len(out)
		out = append(out, rec)
	}
	if resent > 0 {
		e.logger.Warn("server resent rows at or below the watermark",
			"resent_rows", resent,
			"watermark", cfg.Watermark)
	}
	return out
}

// rowToRecord parses one spreadsheet row: date, description, amount and an
// optional category.
func rowToRecord(configID int64, row models.RawRow) (*models.Record, error) {
	if len(row.Cells) < 3 {
		return nil, fmt.Errorf("expected at least 3 cells, got %d", len(row.Cells))
	}

	date, err := models.ParseDate(row.Cells[0])
	if err != nil {
		return nil, err
	}
	amount, err := models.ParseAmount(row.Cells[2])
	if err != nil {
		return nil, err
	}

	rec := &models.Record{
		SourceConfigID: configID,
		NaturalKey:     row.Index,
		Date:           date,
		Description:    row.Cells[1],
		AmountCents:    amount,
	}
	if len(row.Cells) > 3 {
		rec.Category = row.Cells[3]
	}
	return rec, nil
}

// ListSources lists the spreadsheets the account can sync from.
func (e *Engine) ListSources(ctx context.Context) ([]models.SourceDescriptor, error) {
	cred, err := e.creds.GetValidCredential(ctx)
	if err != nil {
		return nil, err
	}
	return e.remote.ListSources(ctx, cred)
}

// CacheThumbnail returns the thumbnail for a source file, fetching it from
// the remote when the cache entry is missing or stale. A fetch failure
// falls back to a stale cached copy when one exists.
func (e *Engine) CacheThumbnail(ctx context.Context, fileID, thumbnailURL string) ([]byte, error) {
	entry, found, err := e.store.GetThumbnail(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if found && !entry.Stale(e.now(), e.thumbnailTTL) {
		return entry.Blob, nil
	}

	cred, err := e.creds.GetValidCredential(ctx)
	if err == nil {
		var blob []byte
		blob, err = e.remote.FetchThumbnail(ctx, cred, thumbnailURL)
		if err == nil {
			if putErr := e.store.PutThumbnail(ctx, fileID, blob); putErr != nil {
				e.logger.Warn("thumbnail cache write failed", "file_id", fileID, "error", putErr.Error())
			}
			if e.metrics != nil {
				e.metrics.ThumbnailFetches.WithLabelValues("fetched").Inc()
			}
			return blob, nil
		}
	}

	if found {
		e.logger.Debug("serving stale thumbnail", "file_id", fileID, "error", err.Error())
		if e.metrics != nil {
			e.metrics.ThumbnailFetches.WithLabelValues("stale").Inc()
		}
		return entry.Blob, nil
	}
	if e.metrics != nil {
		e.metrics.ThumbnailFetches.WithLabelValues("error").Inc()
	}
	return nil, err
}

// ClearThumbnails drops every cached thumbnail.
func (e *Engine) ClearThumbnails(ctx context.Context) error {
	return e.store.ClearThumbnails(ctx)
}
