// Package imagestore archives generated images in MinIO. Provider image URLs
// expire after about an hour, which is too short for an ad that runs for
// weeks, so images are copied into a bucket and served through presigned
// URLs instead.
//
// A nil *Store is valid: Archive returns the source URL unchanged. This is
// how the server runs without object storage.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/keyxmakerx/adpilot/internal/config"
)

// MaxImageBytes caps a single downloaded image.
const MaxImageBytes = 20 << 20

// ErrTooLarge is returned when the source image exceeds MaxImageBytes.
var ErrTooLarge = errors.New("image exceeds size limit")

// objectStore is the subset of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, params url.Values) (*url.URL, error)
}

// Store copies images into a bucket.
type Store struct {
	objects objectStore
	http    *http.Client
	bucket  string
	urlTTL  time.Duration
}

// Archived describes a stored image.
type Archived struct {
	// URL is where the image can be fetched. A presigned bucket URL when
	// archived, otherwise the original source URL.
	URL string `json:"url"`

	// Object is the bucket key. Empty when not archived.
	Object string `json:"object,omitempty"`

	// ExpiresAt is when URL stops working. Zero when not archived.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	Archived bool `json:"archived"`
}

// New connects to MinIO and makes sure the bucket exists. Returns nil when
// storage is not configured.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	s := newStore(client, cfg.Bucket, cfg.URLTTL)
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	slog.Info("image archive ready",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)
	return s, nil
}

func newStore(objects objectStore, bucket string, urlTTL time.Duration) *Store {
	// Presigned URLs cannot outlive seven days.
	if urlTTL <= 0 || urlTTL > 7*24*time.Hour {
		urlTTL = 7 * 24 * time.Hour
	}
	return &Store{
		objects: objects,
		http:    &http.Client{Timeout: 60 * time.Second},
		bucket:  bucket,
		urlTTL:  urlTTL,
	}
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.objects.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.objects.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	slog.Info("created image bucket", slog.String("bucket", s.bucket))
	return nil
}

// Archive downloads sourceURL and stores it under owner's prefix. On a nil
// Store the source URL is returned as is.
func (s *Store) Archive(ctx context.Context, sourceURL, owner string) (*Archived, error) {
	if s == nil {
		return &Archived{URL: sourceURL}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building image request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading image: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > MaxImageBytes {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	object := objectKey(owner, contentType)

	if _, err := s.objects.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return nil, fmt.Errorf("uploading image: %w", err)
	}

	signed, err := s.objects.PresignedGetObject(ctx, s.bucket, object, s.urlTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("presigning image url: %w", err)
	}

	slog.Info("image archived",
		slog.String("object", object),
		slog.Int("bytes", len(data)),
	)
	return &Archived{
		URL:       signed.String(),
		Object:    object,
		ExpiresAt: time.Now().Add(s.urlTTL),
		Archived:  true,
	}, nil
}

// objectKey builds "<owner>/<uuid><ext>". Owners are automation ids, which
// are caller-supplied, so path separators are flattened.
func objectKey(owner, contentType string) string {
	owner = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.TrimSpace(owner))
	if owner == "" {
		owner = "shared"
	}
	ext := ".png"
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = exts[0]
	}
	return path.Join(owner, uuid.New().String()+ext)
}
