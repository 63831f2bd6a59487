// Package uploads drives a submitted file through the upload, processing
// and processed stages and couples each transition to parsing,
// validation and the generation swap of the target dataset.
package uploads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/reconify/internal/datasets"
	"github.com/JaimeStill/reconify/internal/documents"
	"github.com/JaimeStill/reconify/internal/ingest"
	"github.com/JaimeStill/reconify/pkg/lifecycle"
	"github.com/JaimeStill/reconify/pkg/storage"
)

var ErrStorageUnavailable = errors.New("storage backend unavailable")

// SubmitCommand carries one uploaded file.
type SubmitCommand struct {
	Data        []byte
	Filename    string
	Category    documents.Category
	Entity      string
	SubmittedBy string
}

// Result is the outcome reported to the submitter. Stages lists every
// status the document passed through in order.
type Result struct {
	DocID        uuid.UUID          `json:"doc_id"`
	Status       documents.Status   `json:"status"`
	TotalRecords int                `json:"total_records"`
	BackupCount  int                `json:"backup_count"`
	Error        string             `json:"error,omitempty"`
	Stages       []documents.Status `json:"stages"`

	err error
}

// Err returns the failure behind a failed result.
func (r Result) Err() error { return r.err }

// Config bounds what Submit accepts.
type Config struct {
	MaxUploadSize   int64
	Extensions      []string
	StatusRetention time.Duration
	TrackLimit      int
}

// History is the upload history the coordinator reads and appends to.
type History interface {
	Record(ctx context.Context, entry documents.HistoryEntry) (documents.HistoryEntry, error)
	FindByHash(ctx context.Context, category documents.Category, hash string) (*documents.HistoryEntry, error)
	Find(ctx context.Context, docID uuid.UUID) (*documents.HistoryEntry, error)
}

// Ingester replaces a dataset with a new generation.
type Ingester interface {
	IngestGeneration(ctx context.Context, dataset string, rows []datasets.Row, docID string, ts time.Time) (ingest.Result, error)
}

// System coordinates uploads.
type System interface {
	Handler() *Handler

	// Start schedules the status retention sweep.
	Start(lc *lifecycle.Coordinator) error

	// Submit runs cmd to a terminal state. The error is non-nil only when
	// cmd is rejected before a document is created.
	Submit(ctx context.Context, cmd SubmitCommand) (Result, error)

	// Status returns the latest known state of a document.
	Status(ctx context.Context, docID uuid.UUID) (*documents.Document, error)

	// Stages counts the files at each stage of (category, entity).
	Stages(ctx context.Context, category documents.Category, entity string) (storage.StageCounts, error)

	// OnStatus registers fn to observe every status transition.
	OnStatus(fn func(documents.Document))
}
