package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStore holds a run's raw uploaded bytes for the duration of the
// pipeline. Storage is ephemeral: PurgeSession runs on every exit path and
// nothing survives a completed run.
type BlobStore interface {
	// SaveSession persists the submission's raw files under the session ID.
	SaveSession(ctx context.Context, sub *model.Submission) error
	// PurgeSession removes everything stored for the session. Idempotent.
	PurgeSession(ctx context.Context, sessionID string) error
	// SessionExists reports whether any bytes remain for the session.
	SessionExists(ctx context.Context, sessionID string) (bool, error)
}

// NewBlobStore builds the configured backend: a per-session temp directory
// by default, or a MinIO bucket when multiple instances share intake.
func NewBlobStore(cfg *config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinioBlobStore(&cfg.Minio)
	case "local", "":
		return NewLocalBlobStore(cfg.TempDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// LocalBlobStore keeps each session's files in its own directory under root.
type LocalBlobStore struct {
	root string
}

func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "accident-analyzer-uploads")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &LocalBlobStore{root: root}, nil
}

func (s *LocalBlobStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *LocalBlobStore) SaveSession(ctx context.Context, sub *model.Submission) error {
	dir := s.sessionDir(sub.SessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	write := func(name string, data []byte) error {
		return os.WriteFile(filepath.Join(dir, name), data, 0o600)
	}

	if err := write("report_"+filepath.Base(sub.Primary.Filename), sub.Primary.Data); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	for i, photo := range sub.Photos {
		name := fmt.Sprintf("photo_%d_%s", i, filepath.Base(photo.Filename))
		if err := write(name, photo.Data); err != nil {
			return fmt.Errorf("save photo %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *LocalBlobStore) PurgeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return os.RemoveAll(s.sessionDir(sessionID))
}

func (s *LocalBlobStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	_, err := os.Stat(s.sessionDir(sessionID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MinioBlobStore stores session files as objects under a session-ID prefix.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

func NewMinioBlobStore(cfg *config.MinioConfig) (*MinioBlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioBlobStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioBlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioBlobStore) SaveSession(ctx context.Context, sub *model.Submission) error {
	put := func(name, contentType string, data []byte) error {
		object := sub.SessionID + "/" + name
		_, err := s.client.PutObject(ctx, s.bucket, object,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	}

	if err := put("report_"+filepath.Base(sub.Primary.Filename), sub.Primary.ContentType, sub.Primary.Data); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	for i, photo := range sub.Photos {
		name := fmt.Sprintf("photo_%d_%s", i, filepath.Base(photo.Filename))
		if err := put(name, photo.ContentType, photo.Data); err != nil {
			return fmt.Errorf("save photo %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *MinioBlobStore) PurgeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    sessionID + "/",
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return fmt.Errorf("list session objects: %w", object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", object.Key, err)
		}
	}
	return nil
}

func (s *MinioBlobStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:  sessionID + "/",
		MaxKeys: 1,
	})
	for object := range objects {
		if object.Err != nil {
			return false, object.Err
		}
		return true, nil
	}
	return false, nil
}
