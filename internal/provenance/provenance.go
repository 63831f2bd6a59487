// Package provenance identifies the generation a dataset currently holds
// so archived rows can be attributed to the upload that produced them.
package provenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/JaimeStill/reconify/internal/documents"
)

// Sentinel values returned when no earlier generation can be identified.
const (
	InitialDocID     = "initial_upload"
	UnknownTimestamp = "unknown"
)

// Generation identifies one ingested upload.
type Generation struct {
	DocID     string `json:"doc_id"`
	Timestamp string `json:"upload_timestamp"`
}

// Initial reports whether g is the no-prior-generation sentinel.
func (g Generation) Initial() bool {
	return g.DocID == InitialDocID
}

func initial() Generation {
	return Generation{DocID: InitialDocID, Timestamp: UnknownTimestamp}
}

// HistorySource supplies the upload history of an entity.
type HistorySource interface {
	History(ctx context.Context, entity string) ([]documents.HistoryEntry, error)
}

type Resolver struct {
	source HistorySource
	logger *slog.Logger
}

func New(source HistorySource, logger *slog.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: logger.With("system", "provenance"),
	}
}

// FindPreviousGeneration returns the most recently recorded upload of
// entity, other than currentDocID, whose rows were committed to the
// dataset. That includes uploads that failed after ingestion. The reported
// timestamp is the one the generation was ingested with. It never fails: a
// missing history or an unreadable history store yields the initial-upload
// sentinel.
func (r *Resolver) FindPreviousGeneration(ctx context.Context, entity, currentDocID string) Generation {
	entries, err := r.source.History(ctx, entity)
	if err != nil {
		r.logger.Warn("history unavailable, using initial provenance",
			"entity", entity,
			"error", err,
		)
		return initial()
	}

	var (
		best  documents.HistoryEntry
		found bool
	)
	for _, e := range entries {
		if e.Entity != entity || !e.Ingested {
			continue
		}
		if e.DocID.String() == currentDocID {
			continue
		}
		if !found || newer(e, best) {
			best, found = e, true
		}
	}

	if !found {
		return initial()
	}
	submitted := best.SubmittedAt
	if submitted.IsZero() {
		submitted = best.Timestamp
	}
	return Generation{
		DocID:     best.DocID.String(),
		Timestamp: submitted.UTC().Format(time.RFC3339Nano),
	}
}

// newer orders by recorded time, then by insertion id for identical times.
func newer(a, b documents.HistoryEntry) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}
