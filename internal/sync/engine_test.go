package sync

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
	"github.com/sheetvault/sheetvault/internal/models"
	"github.com/sheetvault/sheetvault/internal/remote"
	"github.com/sheetvault/sheetvault/internal/store"
)

type fakeRemote struct {
	mu          gosync.Mutex
	rows        []models.RawRow
	readErrs    []error // consumed one per ReadRows call before rows are served
	readCalls   int
	ignoreSince bool // serve every row regardless of sinceRow, like a misbehaving server
	sources     []models.SourceDescriptor
	thumbs      map[string][]byte
	thumbErr    error
}

func (f *fakeRemote) ReadRows(ctx context.Context, cred *models.Credential, spreadsheetID, sheetRange string, sinceRow int64) ([]models.RawRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readCalls++
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	var out []models.RawRow
	for _, row := range f.rows {
		if f.ignoreSince || row.Index > sinceRow {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeRemote) ListSources(ctx context.Context, cred *models.Credential) ([]models.SourceDescriptor, error) {
	return f.sources, nil
}

func (f *fakeRemote) FetchThumbnail(ctx context.Context, cred *models.Credential, thumbnailURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.thumbErr != nil {
		return nil, f.thumbErr
	}
	return f.thumbs[thumbnailURL], nil
}

type fakeCreds struct {
	mu    gosync.Mutex
	calls int
	err   error
}

func (f *fakeCreds) GetValidCredential(ctx context.Context) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Credential{AccountID: "default", AccessToken: "token", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeCreds) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "vault.db")
	s, err := store.Open(dbPath, key, logging.NewLogger(logging.WithLevel(logging.LevelError)), store.Options{PoolSize: 2, AcquireTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedConfig(t *testing.T, s *store.Store) *models.SourceConfig {
	t.Helper()
	cfg := &models.SourceConfig{
		Name:          "Budget 2025",
		SpreadsheetID: "sheet-abc",
		SheetRange:    "Sheet1!A:D",
		AccountID:     "default",
	}
	require.NoError(t, s.SaveSourceConfig(context.Background(), cfg))
	return cfg
}

func newTestEngine(t *testing.T, s *store.Store, fr *fakeRemote, fc *fakeCreds, opts Options) *Engine {
	t.Helper()
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	return NewEngine(s, fr, fc, logging.NewLogger(logging.WithLevel(logging.LevelError)), nil, opts)
}

func row(index int64, date, desc, amount, category string) models.RawRow {
	return models.RawRow{Index: index, Cells: []string{date, desc, amount, category}}
}

func TestSyncNowInsertsNewRows(t *testing.T) {
	s := newTestStore(t)
	cfg := seedConfig(t, s)

	fr := &fakeRemote{rows: []models.RawRow{
		row(2, "2025-01-10", "Groceries", "42.50", "food"),
		row(3, "2025-01-11", "Fuel", "$1,020.00", "transport"),
	}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, int64(3), result.Watermark)

	records, err := s.ListRecords(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Groceries", records[0].Description)
	assert.Equal(t, int64(4250), records[0].AmountCents)
	assert.Equal(t, int64(102000), records[1].AmountCents)

	stored, err := s.GetSourceConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Watermark)
}

func TestSyncNowUpsertsChangedRows(t *testing.T) {
	s := newTestStore(t)
	cfg := seedConfig(t, s)

	fr := &fakeRemote{rows: []models.RawRow{
		row(2, "2025-01-10", "Groceries", "10.00", "food"),
		row(3, "2025-01-11", "Fuel", "20.00", "transport"),
	}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	_, err := engine.SyncNow(context.Background())
	require.NoError(t, err)

	// The upstream edits row 2 and appends row 4. Reset the watermark so the
	// corrected row is fetched again; the edit must land in place, not as a
	// duplicate.
	fr.mu.Lock()
	fr.rows = []models.RawRow{
		row(2, "2025-01-10", "Groceries", "15.00", "food"),
		row(4, "2025-01-12", "Rent", "30.00", "housing"),
	}
	fr.mu.Unlock()

	stored, err := s.GetSourceConfig(context.Background())
	require.NoError(t, err)
	stored.Watermark = 1
	require.NoError(t, s.SaveSourceConfig(context.Background(), stored))

	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted, "row 4 is new")
	assert.Equal(t, 1, result.Updated, "row 2 changed amount")
	assert.Equal(t, int64(4), result.Watermark)

	records, err := s.ListRecords(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byKey := make(map[int64]models.Record)
	for _, r := range records {
		byKey[r.NaturalKey] = r
	}
	assert.Equal(t, int64(1500), byKey[2].AmountCents)
	assert.Equal(t, int64(2000), byKey[3].AmountCents)
	assert.Equal(t, int64(3000), byKey[4].AmountCents)
}

func TestSyncNowIdempotent(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{rows: []models.RawRow{
		row(2, "2025-01-10", "Groceries", "42.50", "food"),
	}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	_, err := engine.SyncNow(context.Background())
	require.NoError(t, err)

	// Nothing past the watermark now, so the second run is a no-op.
	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total())
	assert.Equal(t, int64(2), result.Watermark)
}

func TestSyncNowWarnsOnResentRows(t *testing.T) {
	s := newTestStore(t)
	cfg := seedConfig(t, s)
	cfg.Watermark = 2
	require.NoError(t, s.SaveSourceConfig(context.Background(), cfg))

	fr := &fakeRemote{
		ignoreSince: true,
		rows: []models.RawRow{
			row(1, "2025-01-08", "Coffee", "4.50", "food"),
			row(2, "2025-01-10", "Groceries", "42.50", "food"),
			row(3, "2025-01-11", "Fuel", "10.00", "transport"),
		},
	}

	var logBuf bytes.Buffer
	logger := logging.NewLogger(logging.WithLevel(logging.LevelWarn), logging.WithOutput(&logBuf))
	engine := NewEngine(s, fr, &fakeCreds{}, logger, nil, Options{RetryBackoff: time.Millisecond})

	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)

	// Rows at or below the watermark are dropped, but loudly.
	assert.Equal(t, 1, result.Inserted)
	assert.Contains(t, logBuf.String(), "resent rows at or below the watermark")
	assert.Contains(t, logBuf.String(), `"resent_rows":2`)
}

func TestSyncNowAfterSourceSwitchDropsOldRows(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{rows: []models.RawRow{
		row(2, "2025-01-10", "Groceries", "42.50", "food"),
		row(3, "2025-01-11", "Fuel", "10.00", "transport"),
	}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	_, err := engine.SyncNow(context.Background())
	require.NoError(t, err)

	next := &models.SourceConfig{
		Name:          "Budget 2026",
		SpreadsheetID: "sheet-def",
		SheetRange:    "Sheet1!A:D",
		AccountID:     "default",
	}
	require.NoError(t, s.SaveSourceConfig(context.Background(), next))

	fr.mu.Lock()
	fr.rows = []models.RawRow{row(2, "2026-01-05", "Rent", "1200.00", "housing")}
	fr.mu.Unlock()

	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	// Only the new sheet's row remains; nothing from the first sheet leaks.
	records, err := s.ListRecords(context.Background(), next.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Rent", records[0].Description)
}

func TestSyncNowSkipsMalformedRows(t *testing.T) {
	s := newTestStore(t)
	cfg := seedConfig(t, s)

	fr := &fakeRemote{rows: []models.RawRow{
		row(2, "not a date", "Broken", "1.00", ""),
		row(3, "2025-01-11", "Fuel", "twenty", ""),
		{Index: 4, Cells: []string{"2025-01-12"}},
		row(5, "2025-01-13", "Valid", "5.00", "misc"),
	}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	// The watermark still covers the skipped rows' predecessors only through
	// parsed rows; row 5 parsed, so it advances past the malformed ones.
	assert.Equal(t, int64(5), result.Watermark)

	records, err := s.ListRecords(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Valid", records[0].Description)
}

func TestSyncNowDeduplicatesWithinFetch(t *testing.T) {
	s := newTestStore(t)
	cfg := seedConfig(t, s)

	fr := &fakeRemote{rows: []models.RawRow{
		row(2, "2025-01-10", "First", "1.00", ""),
		row(2, "2025-01-10", "Second", "2.00", ""),
	}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	records, err := s.ListRecords(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Second", records[0].Description, "last occurrence wins")
}

func TestSyncNowNoSourceConfig(t *testing.T) {
	s := newTestStore(t)
	engine := newTestEngine(t, s, &fakeRemote{}, &fakeCreds{}, Options{})

	_, err := engine.SyncNow(context.Background())
	var noCfg *errors.ErrNoSourceConfig
	require.ErrorAs(t, err, &noCfg)
}

func TestSyncNowRejectsConcurrentRun(t *testing.T) {
	s := newTestStore(t)
	cfg := seedConfig(t, s)

	engine := newTestEngine(t, s, &fakeRemote{}, &fakeCreds{}, Options{})

	// Simulate a run already holding the slot.
	engine.mu.Lock()
	engine.inFlight[cfg.ID] = true
	engine.mu.Unlock()

	_, err := engine.SyncNow(context.Background())
	var busy *errors.ErrSyncInProgress
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, cfg.ID, busy.ConfigID)

	engine.mu.Lock()
	delete(engine.inFlight, cfg.ID)
	engine.mu.Unlock()

	_, err = engine.SyncNow(context.Background())
	require.NoError(t, err)
}

func TestSyncNowRetriesRateLimit(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{
		rows: []models.RawRow{row(2, "2025-01-10", "Groceries", "42.50", "food")},
		readErrs: []error{
			&remote.RateLimitError{RetryAfter: time.Millisecond, Message: "slow down"},
			&errors.ErrRemoteUnavailable{Status: 503},
		},
	}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{RetryAttempts: 3})

	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 3, fr.readCalls)
}

func TestSyncNowGivesUpAfterRetries(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{
		readErrs: []error{
			&errors.ErrRemoteUnavailable{Status: 503},
			&errors.ErrRemoteUnavailable{Status: 503},
		},
	}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{RetryAttempts: 2})

	_, err := engine.SyncNow(context.Background())
	var unavailable *errors.ErrRemoteUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 2, fr.readCalls)
}

func TestSyncNowRefreshesOnceOnUnauthorized(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{
		rows:     []models.RawRow{row(2, "2025-01-10", "Groceries", "42.50", "food")},
		readErrs: []error{&errors.ErrUnauthorized{}},
	}
	fc := &fakeCreds{}
	engine := newTestEngine(t, s, fr, fc, Options{})

	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	// One call up front, one forced refresh after the 401.
	assert.Equal(t, 2, fc.callCount())
}

func TestSyncNowRefreshWithSingleAttempt(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{
		rows:     []models.RawRow{row(2, "2025-01-10", "Groceries", "42.50", "food")},
		readErrs: []error{&errors.ErrUnauthorized{}},
	}
	fc := &fakeCreds{}
	engine := newTestEngine(t, s, fr, fc, Options{RetryAttempts: 1})

	// The refresh does not count against the single fetch attempt, so the
	// retried read still lands the row instead of reporting an empty sync.
	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 2, fr.readCalls)
	assert.Equal(t, 2, fc.callCount())
}

func TestSyncNowPermanentUnauthorized(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{
		readErrs: []error{&errors.ErrUnauthorized{}, &errors.ErrUnauthorized{}},
	}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	_, err := engine.SyncNow(context.Background())
	var unauth *errors.ErrUnauthorized
	require.ErrorAs(t, err, &unauth)
}

func TestSyncNowAuthRequired(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fc := &fakeCreds{err: &errors.ErrAuthRequired{State: "unauthenticated"}}
	engine := newTestEngine(t, s, &fakeRemote{}, fc, Options{})

	_, err := engine.SyncNow(context.Background())
	var required *errors.ErrAuthRequired
	require.ErrorAs(t, err, &required)
}

func TestCacheThumbnail(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{thumbs: map[string][]byte{"https://example.com/t.png": []byte("png-bytes")}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	blob, err := engine.CacheThumbnail(context.Background(), "file-1", "https://example.com/t.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), blob)

	// Fresh entry served from the cache, no second fetch needed.
	fr.mu.Lock()
	fr.thumbErr = fmt.Errorf("remote down")
	fr.mu.Unlock()

	blob, err = engine.CacheThumbnail(context.Background(), "file-1", "https://example.com/t.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), blob)
}

func TestCacheThumbnailStaleFallback(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{thumbs: map[string][]byte{"https://example.com/t.png": []byte("png-bytes")}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{ThumbnailTTL: time.Hour})

	_, err := engine.CacheThumbnail(context.Background(), "file-1", "https://example.com/t.png")
	require.NoError(t, err)

	// Entry now stale and the remote is down: the stale copy is still
	// better than nothing.
	engine.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	fr.mu.Lock()
	fr.thumbErr = fmt.Errorf("remote down")
	fr.mu.Unlock()

	blob, err := engine.CacheThumbnail(context.Background(), "file-1", "https://example.com/t.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), blob)
}

func TestCacheThumbnailMissAndRemoteDown(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{thumbErr: fmt.Errorf("remote down")}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	_, err := engine.CacheThumbnail(context.Background(), "file-1", "https://example.com/t.png")
	require.Error(t, err)
}

func TestClearThumbnails(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{thumbs: map[string][]byte{"https://example.com/t.png": []byte("png-bytes")}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	_, err := engine.CacheThumbnail(context.Background(), "file-1", "https://example.com/t.png")
	require.NoError(t, err)
	require.NoError(t, engine.ClearThumbnails(context.Background()))

	_, found, err := s.GetThumbnail(context.Background(), "file-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListSources(t *testing.T) {
	s := newTestStore(t)

	fr := &fakeRemote{sources: []models.SourceDescriptor{{ID: "sheet-abc", Name: "Budget 2025"}}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	sources, err := engine.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Budget 2025", sources[0].Name)
}

func TestWatcherRunsPeriodically(t *testing.T) {
	s := newTestStore(t)
	seedConfig(t, s)

	fr := &fakeRemote{rows: []models.RawRow{row(2, "2025-01-10", "Groceries", "42.50", "food")}}
	engine := newTestEngine(t, s, fr, &fakeCreds{}, Options{})

	w := NewWatcher(engine, 20*time.Millisecond, logging.NewLogger(logging.WithLevel(logging.LevelError)))
	require.NoError(t, w.Start(context.Background()))
	require.True(t, w.IsRunning())

	// Double start is rejected.
	require.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		return fr.readCalls >= 2
	}, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	assert.False(t, w.IsRunning())
	// Stop is idempotent.
	w.Stop()
}
