package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one synced transaction row. NaturalKey is the absolute source
// row index, unique within a source config, and is how the sync engine
// detects duplicates across fetches.
type Record struct {
	ID             int64     `json:"id"`
	SourceConfigID int64     `json:"source_config_id"`
	NaturalKey     int64     `json:"natural_key"`
	Date           string    `json:"date"` // ISO 8601 date (YYYY-MM-DD)
	Description    string    `json:"description"`
	AmountCents    int64     `json:"amount_cents"`
	Category       string    `json:"category"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Equal reports whether the synced fields match. Identity and timestamp
// columns are ignored so an unchanged upstream row stays untouched.
func (r *Record) Equal(other *Record) bool {
	return r.Date == other.Date &&
		r.Description == other.Description &&
		r.AmountCents == other.AmountCents &&
		r.Category == other.Category
}

// Amount returns the amount in whole currency units.
func (r *Record) Amount() float64 {
	return float64(r.AmountCents) / 100.0
}

var dateFormats = []string{
	"2006-01-02",
	"2/01/2006",
	"02/01/2006",
	"2006/01/02",
}

// ParseDate normalizes a spreadsheet date cell to ISO 8601.
func ParseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty date")
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date format: %q", raw)
}

// ParseAmount converts a spreadsheet amount cell to cents. Accepts optional
// currency symbol, thousands separators and a leading sign.
func ParseAmount(raw string) (int64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	cents := value * 100
	if cents >= 0 {
		return int64(cents + 0.5), nil
	}
	return int64(cents - 0.5), nil
}
