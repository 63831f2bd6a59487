package uploads

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/reconify/internal/documents"
)

// tracker holds the latest state of recent documents for status polling.
// It keeps at most limit documents, evicting the oldest finished ones
// first.
type tracker struct {
	mu    sync.Mutex
	docs  map[uuid.UUID]documents.Document
	limit int
}

func newTracker(limit int) *tracker {
	return &tracker{
		docs:  make(map[uuid.UUID]documents.Document),
		limit: max(limit, 1),
	}
}

func (t *tracker) put(doc documents.Document) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.docs[doc.ID]; !ok && len(t.docs) >= t.limit {
		t.evict()
	}
	t.docs[doc.ID] = doc
}

func (t *tracker) get(id uuid.UUID) (documents.Document, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, ok := t.docs[id]
	return doc, ok
}

// sweep drops finished documents last updated before cutoff and returns
// how many were removed.
func (t *tracker) sweep(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, doc := range t.docs {
		if doc.Status.Terminal() && doc.UpdatedAt.Before(cutoff) {
			delete(t.docs, id)
			n++
		}
	}
	return n
}

func (t *tracker) evict() {
	var (
		victim   uuid.UUID
		oldest   time.Time
		found    bool
		finished bool
	)
	for id, doc := range t.docs {
		term := doc.Status.Terminal()
		switch {
		case !found,
			term && !finished,
			term == finished && doc.UpdatedAt.Before(oldest):
			victim, oldest, found, finished = id, doc.UpdatedAt, true, term
		}
	}
	if found {
		delete(t.docs, victim)
	}
}
