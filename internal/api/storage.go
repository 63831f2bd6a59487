package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/JaimeStill/reconify/internal/datasets"
	"github.com/JaimeStill/reconify/pkg/handlers"
	"github.com/JaimeStill/reconify/pkg/routes"
	"github.com/JaimeStill/reconify/pkg/storage"
)

const octetStream = "application/octet-stream"

type storageHandler struct {
	store  storage.System
	logger *slog.Logger
}

func newStorageHandler(store storage.System, logger *slog.Logger) *storageHandler {
	return &storageHandler{
		store:  store,
		logger: logger.With("handler", "storage"),
	}
}

func (h *storageHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/storage",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/probe", Handler: h.probe},
			{Method: "GET", Pattern: "/{category}/{entity}/{stage}", Handler: h.list},
			{Method: "GET", Pattern: "/{category}/{entity}/{stage}/{file}", Handler: h.download},
		},
	}
}

func (h *storageHandler) probe(w http.ResponseWriter, r *http.Request) {
	probe := h.store.TestConnection(r.Context())

	status := http.StatusOK
	if !probe.OK() {
		status = http.StatusServiceUnavailable
	}
	handlers.RespondJSON(w, status, probe)
}

func (h *storageHandler) list(w http.ResponseWriter, r *http.Request) {
	category, entity, stage, err := stagePath(r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	files, err := h.store.List(r.Context(), category, entity, stage)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, files)
}

// download serves a staged file by its stored name, {doc_id}{ext}.
func (h *storageHandler) download(w http.ResponseWriter, r *http.Request) {
	category, entity, stage, err := stagePath(r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	file := r.PathValue("file")
	ext := path.Ext(file)
	loc := storage.Location{
		Category: category,
		Entity:   entity,
		DocID:    strings.TrimSuffix(file, ext),
		Ext:      strings.ToLower(ext),
	}

	data, err := h.store.Read(r.Context(), loc, stage)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", octetStream)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", loc.Filename()))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func stagePath(r *http.Request) (string, string, storage.Stage, error) {
	stage := storage.Stage(r.PathValue("stage"))
	if !stage.Valid() {
		return "", "", "", fmt.Errorf("%w: stage %q", storage.ErrInvalidKey, stage)
	}

	entity, err := datasets.TableName(r.PathValue("entity"))
	if err != nil {
		return "", "", "", err
	}
	return r.PathValue("category"), entity, stage, nil
}
