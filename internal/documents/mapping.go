package documents

import (
	"net/url"
	"time"

	"github.com/JaimeStill/reconify/pkg/query"
	"github.com/JaimeStill/reconify/pkg/repository"
)

const historyColumns = "doc_id, category, entity, filename, content_hash, size_bytes, " +
	"total_records, backup_count, status, error, submitted_by, recorded_at, ingested, submitted_at"

var projection = query.
	NewProjectionMap("public", "upload_history", "h").
	Project("id", "id").
	Project("doc_id", "doc_id").
	Project("category", "category").
	Project("entity", "entity").
	Project("filename", "filename").
	Project("content_hash", "content_hash").
	Project("size_bytes", "size_bytes").
	Project("total_records", "total_records").
	Project("backup_count", "backup_count").
	Project("status", "status").
	Project("error", "error").
	Project("submitted_by", "submitted_by").
	Project("recorded_at", "timestamp").
	Project("ingested", "ingested").
	Project("submitted_at", "submitted_at")

var (
	newestFirst = query.SortField{Field: "timestamp", Descending: true}
	latestID    = query.SortField{Field: "id", Descending: true}
)

// Filters narrows history listings. Empty fields are ignored.
type Filters struct {
	Category *Category
	Entity   *string
	Status   *Status
	Filename *string
	Since    *time.Time
}

func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("category", f.Category).
		WhereEquals("entity", f.Entity).
		WhereEquals("status", f.Status).
		WhereContains("filename", f.Filename).
		WhereSince("timestamp", f.Since)
}

// FiltersFromQuery reads category, entity, status, filename and since
// (RFC 3339) from URL query values. Unparseable since values are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if v := values.Get("category"); v != "" {
		c := Category(v)
		f.Category = &c
	}
	if v := values.Get("entity"); v != "" {
		f.Entity = &v
	}
	if v := values.Get("status"); v != "" {
		s := Status(v)
		f.Status = &s
	}
	if v := values.Get("filename"); v != "" {
		f.Filename = &v
	}
	if v := values.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Since = &t
		}
	}
	return f
}

func scanEntry(s repository.Scanner) (HistoryEntry, error) {
	var e HistoryEntry
	err := s.Scan(
		&e.ID,
		&e.DocID,
		&e.Category,
		&e.Entity,
		&e.Filename,
		&e.ContentHash,
		&e.SizeBytes,
		&e.TotalRecords,
		&e.BackupCount,
		&e.Status,
		&e.Error,
		&e.SubmittedBy,
		&e.Timestamp,
		&e.Ingested,
		&e.SubmittedAt,
	)
	if err == nil {
		e.Timestamp = e.Timestamp.UTC()
		e.SubmittedAt = e.SubmittedAt.UTC()
	}
	return e, err
}
