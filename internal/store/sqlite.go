package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
	"github.com/sheetvault/sheetvault/internal/models"
)

// activeSourceConfigID pins the single active data source config row. One
// spreadsheet is synced per local database.
const activeSourceConfigID = 1

// Store is the encrypted SQLite cache behind the connection pool. Sensitive
// columns (record description and category, thumbnail blobs) are sealed
// before they reach disk.
type Store struct {
	pool   *Pool
	cipher *Cipher
	logger *logging.Logger
	id     string
}

// Options tunes pool behavior.
type Options struct {
	PoolSize       int
	AcquireTimeout time.Duration
}

// Open opens (creating if needed) the database at dbPath, verifies its
// integrity, runs migrations and wraps it in a bounded pool. key is the
// 32-byte encryption key from the secret store.
func Open(dbPath string, key []byte, logger *logging.Logger, opts Options) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := checkIntegrity(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	cipher, err := NewCipher(key)
	if err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	s := &Store{
		pool:   NewPool(db, opts.PoolSize, opts.AcquireTimeout, logger),
		cipher: cipher,
		logger: logger,
		id:     uuid.New().String(),
	}
	logger.Debug("opened database", "path", dbPath, "instance", s.id)

	return s, nil
}

// checkIntegrity runs the SQLite integrity check. Corruption is fatal and
// surfaced, never auto-repaired.
func checkIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return &errors.ErrSchemaCorruption{Detail: err.Error()}
	}
	if result != "ok" {
		return &errors.ErrSchemaCorruption{Detail: result}
	}
	return nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS source_configs (
					id INTEGER PRIMARY KEY,
					name TEXT NOT NULL,
					spreadsheet_id TEXT NOT NULL,
					sheet_range TEXT NOT NULL,
					watermark INTEGER NOT NULL DEFAULT 0,
					account_id TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS records (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					source_config_id INTEGER NOT NULL,
					natural_key INTEGER NOT NULL,
					date TEXT NOT NULL,
					description TEXT NOT NULL,
					amount INTEGER NOT NULL,
					category TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (source_config_id) REFERENCES source_configs(id) ON DELETE CASCADE,
					UNIQUE (source_config_id, natural_key)
				);

				CREATE TABLE IF NOT EXISTS thumbnails (
					file_id TEXT PRIMARY KEY,
					blob BLOB NOT NULL,
					fetched_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_records_source_config ON records(source_config_id);
				CREATE INDEX IF NOT EXISTS idx_records_date ON records(date);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

// Pool exposes the connection pool for transactional callers.
func (s *Store) Pool() *Pool {
	return s.pool
}

// Close shuts down the store.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Source config operations

// GetSourceConfig returns the active data source config, or
// ErrNoSourceConfig when none has been selected yet.
func (s *Store) GetSourceConfig(ctx context.Context) (*models.SourceConfig, error) {
	handle, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	var cfg models.SourceConfig
	err = handle.Conn().QueryRowContext(ctx, `
		SELECT id, name, spreadsheet_id, sheet_range, watermark, account_id, created_at, updated_at
		FROM source_configs WHERE id = ?
	`, activeSourceConfigID).Scan(&cfg.ID, &cfg.Name, &cfg.SpreadsheetID, &cfg.SheetRange, &cfg.Watermark, &cfg.AccountID, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNoSourceConfig{}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get source config", Err: err}
	}

	return &cfg, nil
}

// SaveSourceConfig stores or replaces the active data source config.
// Pointing it at a different spreadsheet or range drops the cached records
// and resets the watermark, all in one transaction.
func (s *Store) SaveSourceConfig(ctx context.Context, cfg *models.SourceConfig) error {
	if err := cfg.Validate(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "save source config", Err: err}
	}

	cfg.ID = activeSourceConfigID
	now := time.Now().UTC()

	return s.pool.WithTx(ctx, func(tx *sql.Tx) error {
		var prevSheet, prevRange string
		err := tx.QueryRow(`
			SELECT spreadsheet_id, sheet_range FROM source_configs WHERE id = ?
		`, cfg.ID).Scan(&prevSheet, &prevRange)
		if err != nil && err != sql.ErrNoRows {
			return &errors.ErrDatabaseQuery{Operation: "read previous source config", Err: err}
		}
		if err == nil && (prevSheet != cfg.SpreadsheetID || prevRange != cfg.SheetRange) {
			// Switching sheets starts over: drop the old sheet's rows and
			// rewind the watermark.
			if _, err := tx.Exec(`DELETE FROM records WHERE source_config_id = ?`, cfg.ID); err != nil {
				return &errors.ErrDatabaseQuery{Operation: "clear records on source switch", Err: err}
			}
			cfg.Watermark = 0
		}

		_, err = tx.Exec(`
			INSERT INTO source_configs (id, name, spreadsheet_id, sheet_range, watermark, account_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				spreadsheet_id = excluded.spreadsheet_id,
				sheet_range = excluded.sheet_range,
				watermark = excluded.watermark,
				account_id = excluded.account_id,
				updated_at = excluded.updated_at
		`, cfg.ID, cfg.Name, cfg.SpreadsheetID, cfg.SheetRange, cfg.Watermark, cfg.AccountID, now, now)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "save source config", Err: err}
		}
		return nil
	})
}

// UpdateWatermarkTx advances the sync watermark inside the caller's
// transaction, so the watermark and the upserted rows commit atomically.
func (s *Store) UpdateWatermarkTx(tx *sql.Tx, configID, watermark int64) error {
	_, err := tx.Exec(`
		UPDATE source_configs SET watermark = ?, updated_at = ? WHERE id = ?
	`, watermark, time.Now().UTC(), configID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "update watermark", Err: err}
	}
	return nil
}

// Record operations

// RecordOutcome classifies the effect of one upsert.
type RecordOutcome int

const (
	RecordInserted RecordOutcome = iota
	RecordUpdated
	RecordUnchanged
)

// UpsertRecordTx inserts or updates a record by natural key inside the
// caller's transaction. Unchanged rows are left untouched so their
// timestamps survive repeat syncs.
func (s *Store) UpsertRecordTx(tx *sql.Tx, rec *models.Record) (RecordOutcome, error) {
	var (
		existingID   int64
		existingDate string
		sealedDesc   string
		existingAmt  int64
		sealedCat    string
	)
	err := tx.QueryRow(`
		SELECT id, date, description, amount, category
		FROM records WHERE source_config_id = ? AND natural_key = ?
	`, rec.SourceConfigID, rec.NaturalKey).Scan(&existingID, &existingDate, &sealedDesc, &existingAmt, &sealedCat)

	now := time.Now().UTC()

	if err == sql.ErrNoRows {
		desc, sealErr := s.cipher.SealString(rec.Description)
		if sealErr != nil {
			return 0, &errors.ErrDatabaseQuery{Operation: "seal record", Err: sealErr}
		}
		cat, sealErr := s.cipher.SealString(rec.Category)
		if sealErr != nil {
			return 0, &errors.ErrDatabaseQuery{Operation: "seal record", Err: sealErr}
		}
		_, err = tx.Exec(`
			INSERT INTO records (source_config_id, natural_key, date, description, amount, category, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.SourceConfigID, rec.NaturalKey, rec.Date, desc, rec.AmountCents, cat, now, now)
		if err != nil {
			return 0, &errors.ErrDatabaseQuery{Operation: "insert record", Err: err}
		}
		return RecordInserted, nil
	}
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "lookup record", Err: err}
	}

	existingDesc, err := s.cipher.OpenString(sealedDesc)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "open record", Err: err}
	}
	existingCat, err := s.cipher.OpenString(sealedCat)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "open record", Err: err}
	}

	existing := models.Record{
		Date:        existingDate,
		Description: existingDesc,
		AmountCents: existingAmt,
		Category:    existingCat,
	}
	if existing.Equal(rec) {
		return RecordUnchanged, nil
	}

	desc, err := s.cipher.SealString(rec.Description)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "seal record", Err: err}
	}
	cat, err := s.cipher.SealString(rec.Category)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "seal record", Err: err}
	}
	_, err = tx.Exec(`
		UPDATE records SET date = ?, description = ?, amount = ?, category = ?, updated_at = ?
		WHERE id = ?
	`, rec.Date, desc, rec.AmountCents, cat, now, existingID)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "update record", Err: err}
	}
	return RecordUpdated, nil
}

// ListRecords returns all decrypted records for a source config ordered by
// natural key.
func (s *Store) ListRecords(ctx context.Context, sourceConfigID int64) ([]models.Record, error) {
	handle, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	rows, err := handle.Conn().QueryContext(ctx, `
		SELECT id, source_config_id, natural_key, date, description, amount, category, created_at, updated_at
		FROM records WHERE source_config_id = ? ORDER BY natural_key
	`, sourceConfigID)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list records", Err: err}
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var rec models.Record
		var sealedDesc, sealedCat string
		if err := rows.Scan(&rec.ID, &rec.SourceConfigID, &rec.NaturalKey, &rec.Date, &sealedDesc, &rec.AmountCents, &sealedCat, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan record", Err: err}
		}
		if rec.Description, err = s.cipher.OpenString(sealedDesc); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "open record", Err: err}
		}
		if rec.Category, err = s.cipher.OpenString(sealedCat); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "open record", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list records", Err: err}
	}

	return records, nil
}

// CountRecords returns the number of records for a source config.
func (s *Store) CountRecords(ctx context.Context, sourceConfigID int64) (int64, error) {
	handle, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer handle.Release()

	var count int64
	err = handle.Conn().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE source_config_id = ?", sourceConfigID).Scan(&count)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "count records", Err: err}
	}
	return count, nil
}

// Thumbnail operations

// GetThumbnail returns a cached thumbnail, reporting ok=false when absent.
func (s *Store) GetThumbnail(ctx context.Context, fileID string) (*models.ThumbnailEntry, bool, error) {
	handle, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer handle.Release()

	var sealed []byte
	var fetchedAt time.Time
	err = handle.Conn().QueryRowContext(ctx,
		"SELECT blob, fetched_at FROM thumbnails WHERE file_id = ?", fileID).Scan(&sealed, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &errors.ErrDatabaseQuery{Operation: "get thumbnail", Err: err}
	}

	blob, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, false, &errors.ErrDatabaseQuery{Operation: "open thumbnail", Err: err}
	}

	return &models.ThumbnailEntry{FileID: fileID, Blob: blob, FetchedAt: fetchedAt}, true, nil
}

// PutThumbnail stores or refreshes a thumbnail.
func (s *Store) PutThumbnail(ctx context.Context, fileID string, blob []byte) error {
	sealed, err := s.cipher.Seal(blob)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "seal thumbnail", Err: err}
	}

	return s.pool.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO thumbnails (file_id, blob, fetched_at)
			VALUES (?, ?, ?)
			ON CONFLICT(file_id) DO UPDATE SET
				blob = excluded.blob,
				fetched_at = excluded.fetched_at
		`, fileID, sealed, time.Now().UTC())
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "put thumbnail", Err: err}
		}
		return nil
	})
}

// ClearThumbnails evicts every cached thumbnail.
func (s *Store) ClearThumbnails(ctx context.Context) error {
	return s.pool.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM thumbnails"); err != nil {
			return &errors.ErrDatabaseQuery{Operation: "clear thumbnails", Err: err}
		}
		return nil
	})
}
