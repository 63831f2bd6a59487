package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/reconify/internal/datasets"
	"github.com/JaimeStill/reconify/internal/documents"
	"github.com/JaimeStill/reconify/internal/tabular"
	"github.com/JaimeStill/reconify/pkg/formatting"
	"github.com/JaimeStill/reconify/pkg/lifecycle"
	"github.com/JaimeStill/reconify/pkg/storage"
)

const defaultTrackLimit = 1000

type coordinator struct {
	store    storage.System
	history  History
	datasets datasets.Store
	engine   Ingester
	cfg      Config
	logger   *slog.Logger
	tracker  *tracker
	now      func() time.Time

	mu        sync.RWMutex
	observers []func(documents.Document)
}

// New returns the upload coordinator.
func New(
	store storage.System,
	history History,
	data datasets.Store,
	engine Ingester,
	cfg Config,
	logger *slog.Logger,
) System {
	if cfg.TrackLimit <= 0 {
		cfg.TrackLimit = defaultTrackLimit
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = tabular.Extensions
	}
	return &coordinator{
		store:    store,
		history:  history,
		datasets: data,
		engine:   engine,
		cfg:      cfg,
		logger:   logger.With("system", "uploads"),
		tracker:  newTracker(cfg.TrackLimit),
		now:      time.Now,
	}
}

func (c *coordinator) Handler() *Handler {
	return NewHandler(c, c.logger, c.cfg.MaxUploadSize)
}

func (c *coordinator) Start(lc *lifecycle.Coordinator) error {
	if c.cfg.StatusRetention <= 0 {
		return nil
	}
	interval := max(c.cfg.StatusRetention/4, time.Second)
	lc.Every(interval, func(ctx context.Context) {
		if n := c.tracker.sweep(c.now().Add(-c.cfg.StatusRetention)); n > 0 {
			c.logger.Debug("status entries expired", "count", n)
		}
	})
	return nil
}

func (c *coordinator) OnStatus(fn func(documents.Document)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *coordinator) Status(ctx context.Context, docID uuid.UUID) (*documents.Document, error) {
	if doc, ok := c.tracker.get(docID); ok {
		return &doc, nil
	}

	entry, err := c.history.Find(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &documents.Document{
		ID:           entry.DocID,
		Filename:     entry.Filename,
		Category:     entry.Category,
		Entity:       entry.Entity,
		Status:       entry.Status,
		ContentHash:  entry.ContentHash,
		SizeBytes:    entry.SizeBytes,
		TotalRecords: entry.TotalRecords,
		Ingested:     entry.Ingested,
		Error:        entry.Error,
		SubmittedBy:  entry.SubmittedBy,
		SubmittedAt:  entry.SubmittedAt,
		UpdatedAt:    entry.Timestamp,
	}, nil
}

func (c *coordinator) Stages(ctx context.Context, category documents.Category, entity string) (storage.StageCounts, error) {
	table, err := datasets.TableName(entity)
	if err != nil {
		return storage.StageCounts{}, fmt.Errorf("%w: %v", documents.ErrInvalidFile, err)
	}
	return storage.ListStageCounts(ctx, c.store, string(category), table)
}

// validate rejects commands that cannot become a document.
func (c *coordinator) validate(cmd SubmitCommand) (string, error) {
	if _, err := documents.ParseCategory(string(cmd.Category)); err != nil {
		return "", err
	}

	table, err := datasets.TableName(cmd.Entity)
	if err != nil {
		return "", fmt.Errorf("%w: entity %q", documents.ErrInvalidFile, cmd.Entity)
	}

	ext := strings.ToLower(filepath.Ext(cmd.Filename))
	if !slices.Contains(c.cfg.Extensions, ext) {
		return "", fmt.Errorf("%w: extension %q not allowed", documents.ErrInvalidFile, ext)
	}

	if len(cmd.Data) == 0 {
		return "", fmt.Errorf("%w: empty file", documents.ErrInvalidFile)
	}
	if c.cfg.MaxUploadSize > 0 && int64(len(cmd.Data)) > c.cfg.MaxUploadSize {
		return "", fmt.Errorf("%w: %s exceeds %s", documents.ErrFileTooLarge,
			formatting.FormatBytes(int64(len(cmd.Data)), 1),
			formatting.FormatBytes(c.cfg.MaxUploadSize, 1))
	}
	return table, nil
}

func (c *coordinator) Submit(ctx context.Context, cmd SubmitCommand) (Result, error) {
	table, err := c.validate(cmd)
	if err != nil {
		return Result{}, err
	}

	now := c.now().UTC()
	doc := documents.Document{
		ID:          uuid.New(),
		Filename:    cmd.Filename,
		Category:    cmd.Category,
		Entity:      table,
		ContentHash: documents.ContentHash(cmd.Data),
		SizeBytes:   int64(len(cmd.Data)),
		SubmittedBy: cmd.SubmittedBy,
		SubmittedAt: now,
	}

	s := &submission{
		c:   c,
		doc: doc,
		loc: storage.NewLocation(string(doc.Category), table, doc.ID.String(), cmd.Filename),
		logger: c.logger.With(
			"doc_id", doc.ID,
			"category", doc.Category,
			"entity", table,
		),
	}
	s.run(ctx, cmd.Data)
	return s.result(), nil
}

func (c *coordinator) publish(doc documents.Document) {
	c.tracker.put(doc)

	c.mu.RLock()
	observers := slices.Clone(c.observers)
	c.mu.RUnlock()

	for _, fn := range observers {
		fn(doc)
	}
}

// submission is the state of one Submit call.
type submission struct {
	c       *coordinator
	doc     documents.Document
	loc     storage.Location
	logger  *slog.Logger
	stages  []documents.Status
	backups int
	err     error
}

func (s *submission) run(ctx context.Context, data []byte) {
	s.transition(documents.StatusUploading, "")

	if err := s.checkDuplicate(ctx); err != nil {
		s.fail(ctx, err, "")
		return
	}

	if probe := s.c.store.TestConnection(ctx); !probe.OK() {
		s.fail(ctx, fmt.Errorf("%w: %s", ErrStorageUnavailable, probe.Error), "")
		return
	}

	if _, err := s.c.store.Save(ctx, s.loc, data); err != nil {
		s.fail(ctx, fmt.Errorf("save upload: %w", err), storage.StageUpload)
		return
	}
	s.transition(documents.StatusUploaded, storage.StageUpload)

	if err := s.c.store.Promote(ctx, s.loc, storage.StageUpload, storage.StageProcessing); err != nil {
		s.fail(ctx, fmt.Errorf("move to processing: %w", err), storage.StageUpload)
		return
	}
	s.transition(documents.StatusProcessing, storage.StageProcessing)

	rows, err := s.process(ctx)
	if err != nil {
		s.fail(ctx, err, storage.StageProcessing)
		return
	}

	res, err := s.c.engine.IngestGeneration(ctx, s.doc.Entity, rows, s.doc.ID.String(), s.doc.SubmittedAt)
	if err != nil {
		s.fail(ctx, err, storage.StageProcessing)
		return
	}
	s.doc.TotalRecords = res.RowsWritten
	s.doc.Ingested = true
	s.backups = res.BackupCount

	if err := s.c.store.Promote(ctx, s.loc, storage.StageProcessing, storage.StageProcessed); err != nil {
		s.fail(ctx, fmt.Errorf("move to processed: %w", err), storage.StageProcessing)
		return
	}
	s.transition(documents.StatusProcessed, storage.StageProcessed)
	s.record(ctx)

	s.logger.Info("upload processed",
		"rows", s.doc.TotalRecords,
		"backup_count", s.backups,
	)
}

func (s *submission) checkDuplicate(ctx context.Context) error {
	prior, err := s.c.history.FindByHash(ctx, s.doc.Category, s.doc.ContentHash)
	switch {
	case err == nil:
		return fmt.Errorf("%w (doc_id %s, %s)", documents.ErrDuplicate, prior.DocID, prior.Filename)
	case errors.Is(err, documents.ErrNotFound):
		return nil
	default:
		s.logger.Warn("duplicate check skipped", "error", err)
		return nil
	}
}

// process reads the file back from the processing stage, parses it and
// checks its columns against the dataset.
func (s *submission) process(ctx context.Context) ([]datasets.Row, error) {
	data, err := s.c.store.Read(ctx, s.loc, storage.StageProcessing)
	if err != nil {
		return nil, fmt.Errorf("read processing file: %w", err)
	}

	rows, err := parse(s.doc.Filename, data)
	if err != nil {
		return nil, err
	}

	existing, err := s.c.datasets.Columns(ctx, s.doc.Entity)
	if err != nil {
		return nil, fmt.Errorf("read dataset columns: %w", err)
	}
	if err := tabular.Validate(s.doc.Entity, existing, rows[0].Columns()); err != nil {
		return nil, err
	}
	return rows, nil
}

// parse converts a parser panic into a ParseError.
func parse(filename string, data []byte) (rows []datasets.Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, &tabular.ParseError{Filename: filename, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()
	return tabular.Parse(filename, data)
}

func (s *submission) transition(status documents.Status, stage storage.Stage) {
	s.doc.Status = status
	if stage != "" {
		s.doc.Stage = string(stage)
	}
	s.doc.UpdatedAt = s.c.now().UTC()
	s.stages = append(s.stages, status)

	s.logger.Info("status changed", "status", status, "stage", s.doc.Stage)
	s.c.publish(s.doc)
}

// fail deletes the artifact at stage, if any, and finalizes the document
// as failed.
func (s *submission) fail(ctx context.Context, err error, stage storage.Stage) {
	s.err = err
	s.doc.Error = err.Error()

	if stage != "" {
		if derr := s.c.store.Delete(context.WithoutCancel(ctx), s.loc, stage); derr != nil {
			s.logger.Warn("cleanup failed", "stage", stage, "error", derr)
		} else {
			s.logger.Info("cleaned up", "stage", stage)
		}
	}

	s.logger.Error("upload failed", "error", err)
	s.transition(documents.StatusFailed, "")
	s.record(ctx)
}

// record appends the terminal state to the upload history. Failures are
// logged and do not change the outcome.
func (s *submission) record(ctx context.Context) {
	entry := s.doc.Entry(s.backups)
	if _, err := s.c.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("history append failed", "error", err)
	}
}

func (s *submission) result() Result {
	return Result{
		DocID:        s.doc.ID,
		Status:       s.doc.Status,
		TotalRecords: s.doc.TotalRecords,
		BackupCount:  s.backups,
		Error:        s.doc.Error,
		Stages:       slices.Clone(s.stages),
		err:          s.err,
	}
}
