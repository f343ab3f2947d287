package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/myrjola/casegen/internal/errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Store keeps generated images under stable object keys. URL turns a key into an address the playback engine can
// load the image from; the address may expire, so it is resolved whenever a case is read.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// URLExpiry is the lifetime of the presigned URLs handed out when a case is read.
	URLExpiry time.Duration
}

// S3Store uploads images to an S3 compatible bucket and hands out presigned URLs.
type S3Store struct {
	client   *minio.Client
	bucket   string
	region   string
	expiry   time.Duration
	initOnce sync.Once
	initErr  error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	if endpoint == "" || bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init s3 client", slog.String("endpoint", endpoint))
	}
	return &S3Store{client: client, bucket: bucket, region: region, expiry: expiry}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = errors.Wrap(err, "check bucket", slog.String("bucket", s.bucket))
			return
		}
		if !exists {
			if err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				s.initErr = errors.Wrap(err, "make bucket", slog.String("bucket", s.bucket))
			}
		}
	})
	return s.initErr
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, "put object", slog.String("key", key))
	}
	return nil
}

// URL presigns a GET of key that is valid for the configured expiry.
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, "presign object", slog.String("key", key))
	}
	return u.String(), nil
}

// MemoryStore keeps images in memory. It serves local development and tests.
type MemoryStore struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{BaseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) URL(_ context.Context, key string) (string, error) {
	return fmt.Sprintf("%s/%s", s.BaseURL, key), nil
}

// Get returns a stored object.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}
