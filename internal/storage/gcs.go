package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

// Compile-time check that GCSStorage implements ObjectStore.
var _ ObjectStore = (*GCSStorage)(nil)

// gcsPublicHost is the host used for public object URLs.
const gcsPublicHost = "https://storage.googleapis.com"

// ObjectInserter abstracts the single Cloud Storage call GCSStorage needs.
type ObjectInserter interface {
	Insert(ctx context.Context, bucket string, obj *gcs.Object, media io.Reader) (*gcs.Object, error)
}

// GoogleObjectInserter is the production ObjectInserter backed by the
// Cloud Storage JSON API.
type GoogleObjectInserter struct {
	service *gcs.Service
}

// Insert uploads media as obj into bucket.
func (g *GoogleObjectInserter) Insert(ctx context.Context, bucket string, obj *gcs.Object, media io.Reader) (*gcs.Object, error) {
	return g.service.Objects.Insert(bucket, obj).
		Media(media, googleapi.ContentType(obj.ContentType)).
		Context(ctx).
		Do()
}

// GCSConfig holds the configuration for Google Cloud Storage.
type GCSConfig struct {
	Bucket string
	// CredentialsFile is a service-account JSON key. When empty,
	// application default credentials are used.
	CredentialsFile string
}

// GCSStorage uploads objects to a Google Cloud Storage bucket.
type GCSStorage struct {
	inserter ObjectInserter
	bucket   string
}

// GCSOption is a functional option for configuring GCSStorage.
type GCSOption func(*GCSStorage)

// WithObjectInserter sets a custom inserter (for testing).
func WithObjectInserter(ins ObjectInserter) GCSOption {
	return func(s *GCSStorage) {
		s.inserter = ins
	}
}

// NewGCSStorage creates a new GCSStorage. If no inserter is supplied via
// options, a Cloud Storage client is built from cfg's credentials.
func NewGCSStorage(ctx context.Context, cfg GCSConfig, opts ...GCSOption) (*GCSStorage, error) {
	s := &GCSStorage{bucket: cfg.Bucket}
	for _, opt := range opts {
		opt(s)
	}

	if s.inserter == nil {
		ins, err := newGoogleObjectInserter(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		s.inserter = ins
	}

	return s, nil
}

func newGoogleObjectInserter(ctx context.Context, credentialsFile string) (*GoogleObjectInserter, error) {
	var clientOpt option.ClientOption
	if credentialsFile != "" {
		b, err := os.ReadFile(credentialsFile) // #nosec G304 - path comes from configuration
		if err != nil {
			return nil, fmt.Errorf("read GCS credentials file: %w", err)
		}
		jwtCfg, err := google.JWTConfigFromJSON(b, gcs.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("parse GCS credentials: %w", err)
		}
		clientOpt = option.WithHTTPClient(jwtCfg.Client(ctx))
	} else {
		creds, err := google.FindDefaultCredentials(ctx, gcs.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("find default GCS credentials: %w", err)
		}
		clientOpt = option.WithCredentials(creds)
	}

	svc, err := gcs.NewService(ctx, clientOpt)
	if err != nil {
		return nil, fmt.Errorf("create GCS service: %w", err)
	}
	return &GoogleObjectInserter{service: svc}, nil
}

// Upload writes data to the bucket under key and returns
// https://storage.googleapis.com/<bucket>/<key>.
func (s *GCSStorage) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	obj := &gcs.Object{
		Name:        key,
		ContentType: contentType,
	}

	if _, err := s.inserter.Insert(ctx, s.bucket, obj, data); err != nil {
		return "", fmt.Errorf("%w: gcs insert %s: %w", ErrUploadFailed, key, err)
	}

	return publicURL(s.bucket, key), nil
}

// publicURL builds the public URL of an object, escaping each path segment.
func publicURL(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", gcsPublicHost, bucket, strings.Join(segments, "/"))
}
