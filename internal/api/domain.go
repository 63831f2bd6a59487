package api

import (
	"github.com/JaimeStill/reconify/internal/datasets"
	"github.com/JaimeStill/reconify/internal/documents"
	"github.com/JaimeStill/reconify/internal/ingest"
	"github.com/JaimeStill/reconify/internal/provenance"
	"github.com/JaimeStill/reconify/internal/uploads"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Documents documents.System
	Datasets  datasets.Store
	Ingest    *ingest.Engine
	Uploads   uploads.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	db := runtime.Database.Connection()

	docsSystem := documents.New(db, runtime.Logger, runtime.Pagination)
	datasetStore := datasets.NewPostgres(db, runtime.Logger)

	engine := ingest.New(
		datasetStore,
		provenance.New(docsSystem, runtime.Logger),
		runtime.Logger,
		runtime.Ingest.BatchSize,
	)

	uploadsSystem := uploads.New(
		runtime.Storage,
		docsSystem,
		datasetStore,
		engine,
		uploads.Config{
			MaxUploadSize:   runtime.Ingest.MaxUploadSizeBytes(),
			Extensions:      runtime.Ingest.AllowedExtensions,
			StatusRetention: runtime.Ingest.StatusRetentionDuration(),
		},
		runtime.Logger,
	)

	return &Domain{
		Documents: docsSystem,
		Datasets:  datasetStore,
		Ingest:    engine,
		Uploads:   uploadsSystem,
	}
}
