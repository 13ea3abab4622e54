// Package archive keeps a copy of every finished manifest in a Cloud Storage
// bucket, and can restore the latest one into an empty cache.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	prefix       = "manifests/"
	latestObject = prefix + "latest.json"
	ioTimeout    = 2 * time.Minute
)

var ErrNoArchive = errors.New("archive: no manifest archived yet")

// bucket is the slice of a storage bucket the archiver needs.
type bucket interface {
	NewWriter(ctx context.Context, object string) io.WriteCloser
	NewReader(ctx context.Context, object string) (io.ReadCloser, error)
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, object string) io.WriteCloser {
	w := b.handle.Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

func (b gcsBucket) NewReader(ctx context.Context, object string) (io.ReadCloser, error) {
	r, err := b.handle.Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNoArchive
	}
	return r, err
}

type GCSArchiver struct {
	client *storage.Client
	bucket bucket
	name   string
}

// NewGCSArchiver uses application default credentials.
func NewGCSArchiver(ctx context.Context, bucketName string) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSArchiver{
		client: client,
		bucket: gcsBucket{handle: client.Bucket(bucketName)},
		name:   bucketName,
	}, nil
}

func (a *GCSArchiver) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// ArchiveManifest writes the manifest under its build time and as latest.
func (a *GCSArchiver) ArchiveManifest(ctx context.Context, m *domain.Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()

	dated := prefix + m.BuiltAt.UTC().Format("20060102T150405Z") + ".json"
	for _, object := range []string{dated, latestObject} {
		if err := a.write(ctx, object, raw); err != nil {
			return err
		}
	}

	log.Info().
		Str("bucket", a.name).
		Str("object", dated).
		Int("size", len(raw)).
		Msg("archived manifest")
	return nil
}

func (a *GCSArchiver) write(ctx context.Context, object string, raw []byte) error {
	wc := a.bucket.NewWriter(ctx, object)
	if _, err := wc.Write(raw); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", object, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", object, err)
	}
	return nil
}

// Latest returns the most recently archived manifest, or ErrNoArchive.
func (a *GCSArchiver) Latest(ctx context.Context) (*domain.Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()

	rc, err := a.bucket.NewReader(ctx, latestObject)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var m domain.Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", latestObject, err)
	}
	return &m, nil
}
