package models

import (
	"fmt"
	"time"
)

// SourceConfig identifies the remote spreadsheet a local database syncs
// from. One active config per database; created by user selection, updated
// after each sync, never implicitly deleted.
type SourceConfig struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	SpreadsheetID string    `json:"spreadsheet_id"`
	SheetRange    string    `json:"sheet_range"`
	Watermark     int64     `json:"watermark"` // highest synced source row index
	AccountID     string    `json:"account_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks if the source config is complete.
func (c *SourceConfig) Validate() error {
	if c.SpreadsheetID == "" {
		return fmt.Errorf("spreadsheet ID is required")
	}
	if c.SheetRange == "" {
		return fmt.Errorf("sheet range is required")
	}
	if c.AccountID == "" {
		return fmt.Errorf("account ID is required")
	}
	if c.Watermark < 0 {
		return fmt.Errorf("watermark cannot be negative")
	}
	return nil
}

// SourceDescriptor is one entry from the remote source listing.
type SourceDescriptor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModifiedAt   time.Time `json:"modified_at"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// RawRow is a row as returned by the remote, before normalization. Index is
// the absolute row position within the sheet and is stable across fetches.
type RawRow struct {
	Index int64    `json:"index"`
	Cells []string `json:"cells"`
}
