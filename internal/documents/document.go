// Package documents models uploaded dataset files and their append-only
// upload history. History entries drive duplicate detection and backup
// provenance.
package documents

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category groups entities by the kind of feed that supplies them.
type Category string

const (
	CategorySOT              Category = "sot"
	CategoryPanel            Category = "panel"
	CategoryRecategorization Category = "recategorization"
)

// ParseCategory validates a category received from a caller.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategorySOT, CategoryPanel, CategoryRecategorization:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidFile, s)
}

// Status is the externally visible progress of one document.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// Document is one uploaded artifact as it moves through the stages.
// ID is the only filename component used in storage.
type Document struct {
	ID           uuid.UUID `json:"doc_id"`
	Filename     string    `json:"filename"`
	Category     Category  `json:"category"`
	Entity       string    `json:"entity"`
	Stage        string    `json:"stage"`
	Status       Status    `json:"status"`
	ContentHash  string    `json:"content_hash"`
	SizeBytes    int64     `json:"size_bytes"`
	TotalRecords int       `json:"total_records"`
	Ingested     bool      `json:"ingested"`
	Error        string    `json:"error,omitempty"`
	SubmittedBy  string    `json:"submitted_by,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HistoryEntry records the terminal outcome of one document. Entries are
// never updated.
//
// Ingested is set when the document's rows were committed to its dataset,
// which can be true for a failed document whose final promote did not
// complete. SubmittedAt is the upload timestamp the rows were ingested
// with; Timestamp is when the outcome was recorded.
type HistoryEntry struct {
	ID           int64     `json:"id"`
	DocID        uuid.UUID `json:"doc_id"`
	Category     Category  `json:"category"`
	Entity       string    `json:"entity"`
	Filename     string    `json:"filename"`
	ContentHash  string    `json:"content_hash"`
	SizeBytes    int64     `json:"size_bytes"`
	TotalRecords int       `json:"total_records"`
	BackupCount  int       `json:"backup_count"`
	Status       Status    `json:"status"`
	Ingested     bool      `json:"ingested"`
	Error        string    `json:"error,omitempty"`
	SubmittedBy  string    `json:"submitted_by,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// Entry snapshots d as a history entry.
func (d *Document) Entry(backupCount int) HistoryEntry {
	return HistoryEntry{
		DocID:        d.ID,
		Category:     d.Category,
		Entity:       d.Entity,
		Filename:     d.Filename,
		ContentHash:  d.ContentHash,
		SizeBytes:    d.SizeBytes,
		TotalRecords: d.TotalRecords,
		BackupCount:  backupCount,
		Status:       d.Status,
		Ingested:     d.Ingested,
		Error:        d.Error,
		SubmittedBy:  d.SubmittedBy,
		SubmittedAt:  d.SubmittedAt,
		Timestamp:    d.UpdatedAt,
	}
}

// ContentHash returns the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
