// Package storage provides a staged file store: files move through the
// upload, processing, and processed stages of a (category, entity) pair on
// a local disk, an SFTP file server, or an object storage bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/reconify/pkg/lifecycle"
)

// System manages staged files on the configured backend.
type System interface {
	// Kind reports the active backend.
	Kind() Kind
	// Start registers startup and shutdown hooks with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
	// Save writes data at the upload stage, creating stage locations on first use,
	// and returns the backend path of the stored file.
	Save(ctx context.Context, loc Location, data []byte) (string, error)
	// Promote moves the file from one stage to another. The file is never
	// left absent from both stages.
	Promote(ctx context.Context, loc Location, from, to Stage) error
	// Read returns the file content at a stage. Returns ErrNotFound if absent.
	Read(ctx context.Context, loc Location, stage Stage) ([]byte, error)
	// Delete removes the file at a stage. A missing file is not an error.
	Delete(ctx context.Context, loc Location, stage Stage) error
	// List returns the visible files at a stage. A stage that was never
	// created yields an empty list.
	List(ctx context.Context, category, entity string, stage Stage) ([]FileInfo, error)
	// Exists reports whether the file is present at a stage.
	Exists(ctx context.Context, loc Location, stage Stage) (bool, error)
	// TestConnection checks backend reachability and base path access.
	TestConnection(ctx context.Context) Probe
	// ForceReconnect tears down and rebuilds the cached backend connection.
	ForceReconnect(ctx context.Context) error
	// Close releases backend connections.
	Close() error
}

// driver is the backend primitive set the staged store is built on.
// Paths are backend-absolute. Missing files surface as fs.ErrNotExist.
type driver interface {
	connect(ctx context.Context) error
	reset() error
	join(key string) string
	mkdirs(ctx context.Context, dirs []string) error
	write(ctx context.Context, path string, data []byte) error
	move(ctx context.Context, src, dst string) error
	read(ctx context.Context, path string) ([]byte, error)
	remove(ctx context.Context, path string) error
	list(ctx context.Context, dir string) ([]FileInfo, error)
	stat(ctx context.Context, path string) (bool, error)
	probe(ctx context.Context) error
	isConnErr(err error) bool
	close() error
}

type store struct {
	kind    Kind
	driver  driver
	logger  *slog.Logger
	ensured sync.Map
}

// New creates the storage system selected by cfg.Kind. No connection is
// established until first use.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	logger = logger.With("system", "storage", "backend", string(cfg.Kind))

	var (
		d   driver
		err error
	)

	switch cfg.Kind {
	case KindLocal:
		d = newLocalDriver(&cfg.Local)
	case KindRemote:
		d, err = newSFTPDriver(&cfg.Remote)
	case KindObject:
		d, err = newObjectDriver(&cfg.Object, logger)
	default:
		err = fmt.Errorf("unsupported storage kind: %q", cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("create storage backend: %w", err)
	}

	return newStore(cfg.Kind, d, logger), nil
}

func newStore(kind Kind, d driver, logger *slog.Logger) *store {
	return &store{
		kind:   kind,
		driver: d,
		logger: logger,
	}
}

func (s *store) Kind() Kind {
	return s.kind
}

func (s *store) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting storage system")

	lc.OnStartup(func() {
		probe := s.TestConnection(lc.Context())
		if !probe.OK() {
			s.logger.Warn("storage backend not ready at startup", "error", probe.Error)
			return
		}
		s.logger.Info("storage backend ready")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := s.Close(); err != nil {
			s.logger.Error("storage close failed", "error", err)
			return
		}
		s.logger.Info("storage connections closed")
	})

	return nil
}

func (s *store) Save(ctx context.Context, loc Location, data []byte) (string, error) {
	if err := loc.validate(); err != nil {
		return "", err
	}

	if err := s.ensureStages(ctx, loc.Category, loc.Entity); err != nil {
		return "", err
	}

	path := s.driver.join(loc.Key(StageUpload))
	err := s.retry(ctx, "save", func() error {
		return s.driver.write(ctx, path, data)
	})
	if err != nil {
		return "", s.classify("save", path, ErrTransfer, err)
	}

	s.logger.Info("file saved", "doc_id", loc.DocID, "entity", loc.Entity, "stage", StageUpload, "size", len(data))
	return path, nil
}

func (s *store) Promote(ctx context.Context, loc Location, from, to Stage) error {
	if err := loc.validate(); err != nil {
		return err
	}
	if !from.Valid() || !to.Valid() || from == to {
		return fmt.Errorf("%w: promote %s to %s", ErrInvalidKey, from, to)
	}

	if err := s.ensureStages(ctx, loc.Category, loc.Entity); err != nil {
		return err
	}

	src := s.driver.join(loc.Key(from))
	dst := s.driver.join(loc.Key(to))

	err := s.retry(ctx, "promote", func() error {
		return s.driver.move(ctx, src, dst)
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrNotFound, err)
		}
		return s.classify("promote", src, ErrTransfer, err)
	}

	s.logger.Info("file promoted", "doc_id", loc.DocID, "entity", loc.Entity, "from", from, "to", to)
	return nil
}

func (s *store) Read(ctx context.Context, loc Location, stage Stage) ([]byte, error) {
	if err := loc.validate(); err != nil {
		return nil, err
	}

	path := s.driver.join(loc.Key(stage))

	var data []byte
	err := s.retry(ctx, "read", func() error {
		var err error
		data, err = s.driver.read(ctx, path)
		return err
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, opError(ErrNotFound, "read", path, nil)
		}
		return nil, s.classify("read", path, ErrTransfer, err)
	}

	return data, nil
}

func (s *store) Delete(ctx context.Context, loc Location, stage Stage) error {
	if err := loc.validate(); err != nil {
		return err
	}

	path := s.driver.join(loc.Key(stage))
	err := s.retry(ctx, "delete", func() error {
		return s.driver.remove(ctx, path)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s.classify("delete", path, ErrTransfer, err)
	}

	s.logger.Info("file deleted", "doc_id", loc.DocID, "entity", loc.Entity, "stage", stage)
	return nil
}

func (s *store) List(ctx context.Context, category, entity string, stage Stage) ([]FileInfo, error) {
	if err := validateSegments(category, entity); err != nil {
		return nil, err
	}
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: stage %q", ErrInvalidKey, stage)
	}

	dir := s.driver.join(stageDir(category, entity, stage))

	var files []FileInfo
	err := s.retry(ctx, "list", func() error {
		var err error
		files, err = s.driver.list(ctx, dir)
		return err
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []FileInfo{}, nil
		}
		return nil, s.classify("list", dir, ErrTransfer, err)
	}

	visible := make([]FileInfo, 0, len(files))
	for _, f := range files {
		if f.Name == "" || strings.HasPrefix(f.Name, ".") {
			continue
		}
		visible = append(visible, f)
	}
	return visible, nil
}

func (s *store) Exists(ctx context.Context, loc Location, stage Stage) (bool, error) {
	if err := loc.validate(); err != nil {
		return false, err
	}

	path := s.driver.join(loc.Key(stage))

	var ok bool
	err := s.retry(ctx, "exists", func() error {
		var err error
		ok, err = s.driver.stat(ctx, path)
		return err
	})
	if err != nil {
		return false, s.classify("exists", path, ErrTransfer, err)
	}
	return ok, nil
}

func (s *store) TestConnection(ctx context.Context) Probe {
	probe := Probe{Backend: s.kind}

	if err := s.driver.connect(ctx); err != nil {
		if rerr := s.ForceReconnect(ctx); rerr != nil {
			probe.Error = rerr.Error()
			s.logger.Error("connection test failed", "error", rerr)
			return probe
		}
	}
	probe.Reachable = true

	// A cached connection that broke since the last call surfaces here
	// rather than in connect, so the probe gets the same reconnect retry.
	err := s.retry(ctx, "probe", func() error {
		return s.driver.probe(ctx)
	})
	if err != nil {
		if errors.Is(err, ErrConnection) || s.driver.isConnErr(err) {
			probe.Reachable = false
		}
		probe.Error = err.Error()
		s.logger.Error("base path not accessible", "error", err)
		return probe
	}
	probe.PathAccessible = true

	return probe
}

func (s *store) ForceReconnect(ctx context.Context) error {
	s.logger.Info("forcing reconnection")

	if err := s.driver.reset(); err != nil {
		s.logger.Warn("closing stale connection failed", "error", err)
	}
	s.ensured.Clear()

	if err := s.driver.connect(ctx); err != nil {
		return opError(ErrConnection, "connect", s.driver.join(""), err)
	}
	return nil
}

func (s *store) Close() error {
	return s.driver.close()
}

// ensureStages creates all three stage locations for (category, entity) once per process.
func (s *store) ensureStages(ctx context.Context, category, entity string) error {
	key := path.Join(category, entity)
	if _, ok := s.ensured.Load(key); ok {
		return nil
	}

	dirs := make([]string, 0, len(Stages))
	for _, stage := range Stages {
		dirs = append(dirs, s.driver.join(stageDir(category, entity, stage)))
	}

	err := s.retry(ctx, "mkdirs", func() error {
		return s.driver.mkdirs(ctx, dirs)
	})
	if err != nil {
		return s.classify("mkdirs", s.driver.join(path.Join(category, entity)), ErrDirectory, err)
	}

	s.ensured.Store(key, struct{}{})
	return nil
}

// retry runs fn and, when it fails on a broken or uninitialized connection,
// reconnects once and runs it again.
func (s *store) retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || !s.driver.isConnErr(err) {
		return err
	}

	s.logger.Warn("operation failed on broken connection, reconnecting", "op", op, "error", err)
	if rerr := s.ForceReconnect(ctx); rerr != nil {
		return rerr
	}
	return fn()
}

func (s *store) classify(op, path string, fallback, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if s.driver.isConnErr(err) {
		return opError(ErrConnection, op, path, err)
	}
	return opError(fallback, op, path, err)
}

// ListStageCounts lists all three stages of (category, entity) concurrently
// and returns the number of files at each.
func ListStageCounts(ctx context.Context, sys System, category, entity string) (StageCounts, error) {
	counts := StageCounts{Category: category, Entity: entity}
	results := make([]int, len(Stages))

	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range Stages {
		g.Go(func() error {
			files, err := sys.List(gctx, category, entity, stage)
			if err != nil {
				return err
			}
			results[i] = len(files)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return counts, err
	}

	counts.Upload = results[0]
	counts.Processing = results[1]
	counts.Processed = results[2]
	return counts, nil
}
