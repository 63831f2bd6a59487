package documents

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/reconify/pkg/pagination"
)

// System is the upload history store.
type System interface {
	Handler() *Handler

	// Record appends entry. A second entry for the same doc_id is
	// rejected with ErrDuplicate.
	Record(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)

	// History returns every entry for entity, newest first.
	History(ctx context.Context, entity string) ([]HistoryEntry, error)

	// FindByHash returns the newest processed entry in category whose
	// content hash matches, or ErrNotFound.
	FindByHash(ctx context.Context, category Category, hash string) (*HistoryEntry, error)

	Find(ctx context.Context, docID uuid.UUID) (*HistoryEntry, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[HistoryEntry], error)
}
