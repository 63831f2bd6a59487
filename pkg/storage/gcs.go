package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type gcs struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

func newGCSClient(ctx context.Context, cfg *ObjectConfig) (*gcs, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &gcs{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
	}, nil
}

// init confirms the bucket exists. Buckets are provisioned out of band
// since creation requires a project binding.
func (g *gcs) init(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			return fmt.Errorf("bucket %s: %w", g.name, fs.ErrNotExist)
		}
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusForbidden {
			return fmt.Errorf("bucket %s: %w", g.name, fs.ErrPermission)
		}
		return fmt.Errorf("bucket attrs %s: %w", g.name, err)
	}
	return nil
}

func (g *gcs) put(ctx context.Context, key string, data []byte) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = octetStream

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

func (g *gcs) get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	defer r.Close()

	return io.ReadAll(r)
}

func (g *gcs) copy(ctx context.Context, src, dst string) error {
	copier := g.bucket.Object(dst).CopierFrom(g.bucket.Object(src))
	if _, err := copier.Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%s: %w", src, fs.ErrNotExist)
		}
		return fmt.Errorf("copy object %s to %s: %w", src, dst, err)
	}
	return nil
}

func (g *gcs) remove(ctx context.Context, key string) error {
	if err := g.bucket.Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%s: %w", key, fs.ErrNotExist)
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (g *gcs) list(ctx context.Context, prefix string) ([]FileInfo, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})

	var files []FileInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		if attrs.Prefix != "" {
			continue
		}

		name := strings.TrimPrefix(attrs.Name, prefix)
		if name == "" {
			continue
		}
		files = append(files, FileInfo{
			Name:     name,
			Size:     attrs.Size,
			Modified: attrs.Updated.UTC(),
		})
	}
	return files, nil
}

func (g *gcs) exists(ctx context.Context, key string) (bool, error) {
	_, err := g.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("object attrs %s: %w", key, err)
	}
	return true, nil
}

func (g *gcs) close() error {
	return g.client.Close()
}
