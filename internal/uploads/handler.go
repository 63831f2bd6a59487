package uploads

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/JaimeStill/reconify/internal/datasets"
	"github.com/JaimeStill/reconify/internal/documents"
	"github.com/JaimeStill/reconify/internal/ingest"
	"github.com/JaimeStill/reconify/internal/tabular"
	"github.com/JaimeStill/reconify/pkg/handlers"
	"github.com/JaimeStill/reconify/pkg/repository"
	"github.com/JaimeStill/reconify/pkg/routes"
	"github.com/JaimeStill/reconify/pkg/storage"
)

// SubmittedByHeader names the caller recorded with each upload.
const SubmittedByHeader = "X-Submitted-By"

// Tabular uploads are either delimited text or an OOXML zip container.
var acceptedTypes = []string{"text/plain", "application/zip"}

// Handler serves upload submission and stage inspection.
type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
}

func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "uploads"),
		maxUploadSize: maxUploadSize,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/uploads",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/{category}", Handler: h.Submit},
			{Method: "GET", Pattern: "/status/{id}", Handler: h.Status},
			{Method: "GET", Pattern: "/{category}/{entity}/stages", Handler: h.Stages},
		},
	}
}

// Submit accepts a multipart form with a file and an entity field and
// runs it through the upload lifecycle.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	category, err := documents.ParseCategory(r.PathValue("category"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, documents.ErrFileTooLarge)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, documents.ErrInvalidFile)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, documents.ErrInvalidFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, documents.ErrInvalidFile)
		return
	}

	if mime := mimetype.Detect(data); len(data) > 0 && !accepted(mime) {
		handlers.RespondError(w, h.logger, http.StatusUnsupportedMediaType,
			fmt.Errorf("%w: content type %s", tabular.ErrUnsupportedFormat, mime.String()))
		return
	}

	cmd := SubmitCommand{
		Data:        data,
		Filename:    header.Filename,
		Category:    category,
		Entity:      r.FormValue("entity"),
		SubmittedBy: r.Header.Get(SubmittedByHeader),
	}

	result, err := h.sys.Submit(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, resultStatus(result), result)
}

// Status returns the latest state of one document.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, documents.ErrInvalidFile)
		return
	}

	doc, err := h.sys.Status(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, doc)
}

// Stages returns per-stage file counts for a (category, entity) pair.
func (h *Handler) Stages(w http.ResponseWriter, r *http.Request) {
	category, err := documents.ParseCategory(r.PathValue("category"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	counts, err := h.sys.Stages(r.Context(), category, r.PathValue("entity"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, counts)
}

func accepted(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		for _, t := range acceptedTypes {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}

func resultStatus(r Result) int {
	if r.Status == documents.StatusProcessed {
		return http.StatusCreated
	}
	return MapHTTPStatus(r.Err())
}

// MapHTTPStatus maps submission errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	var (
		parseErr      *tabular.ParseError
		validationErr *tabular.ValidationError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, documents.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, documents.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &parseErr),
		errors.As(err, &validationErr),
		errors.Is(err, ingest.ErrEmptyGeneration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, datasets.ErrInvalidTable),
		errors.Is(err, documents.ErrInvalidFile):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, storage.ErrConnection),
		errors.Is(err, repository.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, documents.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
