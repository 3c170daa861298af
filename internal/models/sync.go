package models

import "time"

// SyncResult summarizes one completed sync run.
type SyncResult struct {
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Watermark int64         `json:"watermark"`
	Duration  time.Duration `json:"duration"`
}

// Total returns the number of rows seen in the fetch.
func (r *SyncResult) Total() int {
	return r.Inserted + r.Updated + r.Unchanged
}

// ThumbnailEntry is a cached spreadsheet thumbnail with its fetch time for
// staleness checks.
type ThumbnailEntry struct {
	FileID    string    `json:"file_id"`
	Blob      []byte    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Stale reports whether the entry is older than ttl at the given time.
func (t *ThumbnailEntry) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.FetchedAt) > ttl
}
