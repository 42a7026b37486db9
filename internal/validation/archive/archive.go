// Package archive optionally mirrors validation artifacts to S3-compatible
// cold storage, following the teacher's minio-backed firmware storage
// provider (internal/hub/storage/minio.go), adapted from firmware image
// hosting to write-once artifact archival with a retention sweep.
package archive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/natej/panos-upgrade/pkg/log"
)

// Options configures the archiver.
type Options struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	RetentionAge    time.Duration
}

// Archiver uploads validation artifacts to an S3-compatible bucket and
// periodically sweeps objects older than RetentionAge.
type Archiver struct {
	client *minio.Client
	bucket string
	maxAge time.Duration
}

// New constructs an Archiver, verifying the bucket exists (creating it
// if not, matching the teacher's CheckBucket convenience).
func New(ctx context.Context, opts Options) (*Archiver, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Transport: http.DefaultTransport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", opts.Bucket, err)
		}
	}

	return &Archiver{client: client, bucket: opts.Bucket, maxAge: opts.RetentionAge}, nil
}

// Upload mirrors the artifact at localPath into the bucket under the
// same relative name it has under the local validation/ tree.
func (a *Archiver) Upload(ctx context.Context, localPath, objectKey string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = a.client.PutObject(ctx, a.bucket, objectKey, f, info.Size(), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("uploading %s to %s/%s: %w", localPath, a.bucket, objectKey, err)
	}
	return nil
}

// UploadDir walks dir (pre_flight/ or post_flight/) and uploads every
// *.json artifact, keyed by "<base name of dir>/<file name>", its path
// relative to the validation/ tree.
func (a *Archiver) UploadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		localPath := filepath.Join(dir, e.Name())
		objectKey := filepath.Join(filepath.Base(dir), e.Name())
		if err := a.Upload(ctx, localPath, objectKey); err != nil {
			log.Error(err, "failed to archive validation artifact", "path", localPath)
		}
	}
	return nil
}

// Sweep removes archived objects older than the configured retention age.
func (a *Archiver) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-a.maxAge)
	objectsCh := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Recursive: true})
	for obj := range objectsCh {
		if obj.Err != nil {
			return fmt.Errorf("listing bucket %s: %w", a.bucket, obj.Err)
		}
		if obj.LastModified.Before(cutoff) {
			if err := a.client.RemoveObject(ctx, a.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
				log.Error(err, "failed to remove expired archive object", "key", obj.Key)
			}
		}
	}
	return nil
}

// Run periodically sweeps until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Sweep(ctx); err != nil {
				log.Error(err, "archive retention sweep failed")
			}
		}
	}
}
