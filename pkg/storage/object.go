package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"
)

// keepMarker is the placeholder object that makes an empty stage visible
// in flat object namespaces.
const keepMarker = ".keep"

// objectInitTimeout bounds the bucket check run on every new client.
const objectInitTimeout = 30 * time.Second

// objectClient is the provider-specific bucket surface. Missing objects
// surface as fs.ErrNotExist.
type objectClient interface {
	init(ctx context.Context) error
	put(ctx context.Context, key string, data []byte) error
	get(ctx context.Context, key string) ([]byte, error)
	copy(ctx context.Context, src, dst string) error
	remove(ctx context.Context, key string) error
	list(ctx context.Context, prefix string) ([]FileInfo, error)
	exists(ctx context.Context, key string) (bool, error)
	close() error
}

// object stores staged files as keys in a bucket. Stage directories are
// key prefixes marked with a .keep object.
type object struct {
	prefix string
	logger *slog.Logger
	conn   *handle[objectClient]
}

func newObjectDriver(cfg *ObjectConfig, logger *slog.Logger) (*object, error) {
	var dial func(context.Context) (objectClient, error)

	switch cfg.Provider {
	case ProviderAzure:
		dial = func(ctx context.Context) (objectClient, error) {
			return newAzureClient(cfg)
		}
	case ProviderGCS:
		dial = func(ctx context.Context) (objectClient, error) {
			return newGCSClient(ctx, cfg)
		}
	case ProviderS3:
		dial = func(ctx context.Context) (objectClient, error) {
			return newS3Client(ctx, cfg)
		}
	default:
		return nil, fmt.Errorf("unsupported object provider: %q", cfg.Provider)
	}

	// The bucket is created or checked once per client so every operation
	// after a reconnect runs against an initialized container.
	initDial := func(ctx context.Context) (objectClient, error) {
		c, err := dial(ctx)
		if err != nil {
			return nil, err
		}

		ictx, cancel := context.WithTimeout(ctx, objectInitTimeout)
		defer cancel()
		if err := c.init(ictx); err != nil {
			c.close()
			return nil, err
		}
		return c, nil
	}

	return &object{
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
		conn:   newHandle(initDial, objectClient.close),
	}, nil
}

func (o *object) connect(ctx context.Context) error {
	_, err := o.conn.get(ctx)
	return err
}

func (o *object) reset() error { return o.conn.reset() }

func (o *object) close() error { return o.conn.reset() }

func (o *object) join(key string) string {
	return path.Join(o.prefix, key)
}

func (o *object) mkdirs(ctx context.Context, dirs []string) error {
	c, err := o.conn.get(ctx)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		marker := path.Join(dir, keepMarker)
		ok, err := c.exists(ctx, marker)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := c.put(ctx, marker, nil); err != nil {
			return fmt.Errorf("create marker %s: %w", marker, err)
		}
	}
	return nil
}

func (o *object) write(ctx context.Context, key string, data []byte) error {
	c, err := o.conn.get(ctx)
	if err != nil {
		return err
	}
	return c.put(ctx, key, data)
}

// move copies src to dst and then deletes src. If the source delete fails
// the destination copy is removed, leaving the file at src only.
func (o *object) move(ctx context.Context, src, dst string) error {
	c, err := o.conn.get(ctx)
	if err != nil {
		return err
	}

	if err := c.copy(ctx, src, dst); err != nil {
		return err
	}

	if err := c.remove(ctx, src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if cerr := c.remove(ctx, dst); cerr != nil && !errors.Is(cerr, fs.ErrNotExist) {
			o.logger.Error("compensating delete failed", "key", dst, "error", cerr)
			return fmt.Errorf("delete source %s: %w (compensating delete of %s failed: %v)", src, err, dst, cerr)
		}
		return fmt.Errorf("delete source %s: %w", src, err)
	}
	return nil
}

func (o *object) read(ctx context.Context, key string) ([]byte, error) {
	c, err := o.conn.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, key)
}

func (o *object) remove(ctx context.Context, key string) error {
	c, err := o.conn.get(ctx)
	if err != nil {
		return err
	}
	return c.remove(ctx, key)
}

func (o *object) list(ctx context.Context, dir string) ([]FileInfo, error) {
	c, err := o.conn.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, strings.TrimSuffix(dir, "/")+"/")
}

func (o *object) stat(ctx context.Context, key string) (bool, error) {
	c, err := o.conn.get(ctx)
	if err != nil {
		return false, err
	}
	return c.exists(ctx, key)
}

// probe lists the configured prefix to confirm read access.
func (o *object) probe(ctx context.Context) error {
	c, err := o.conn.get(ctx)
	if err != nil {
		return err
	}

	prefix := ""
	if o.prefix != "" {
		prefix = o.prefix + "/"
	}
	_, err = c.list(ctx, prefix)
	return err
}

func (o *object) isConnErr(err error) bool {
	return isNetworkError(err)
}
