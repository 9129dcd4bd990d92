// Package archive uploads run reports to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/model"
)

// Client is the subset of the minio client the archiver uses.
type Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewClient creates a minio client for cfg.
func NewClient(cfg config.ArchiveConfig) (Client, error) {
	// minio expects the endpoint without a scheme
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "archive: create minio client")
	}
	return c, nil
}

// Archiver writes one JSON report per run under <continent>/<run id>.json.
type Archiver struct {
	client Client
	bucket string
}

// New creates an Archiver writing to bucket.
func New(client Client, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket}
}

// Key returns the object name of a run report.
func Key(run *model.Run) string {
	return path.Join(run.Continent, run.ID+".json")
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	ok, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return eris.Wrapf(err, "archive: check bucket %s", a.bucket)
	}
	if ok {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return eris.Wrapf(err, "archive: create bucket %s", a.bucket)
	}
	return nil
}

// Upload stores the run and its summary as JSON.
func (a *Archiver) Upload(ctx context.Context, run *model.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return eris.Wrap(err, "archive: marshal run")
	}

	key := Key(run)
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return eris.Wrapf(err, "archive: put %s", key)
	}

	zap.L().Info("archive: run report uploaded",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size),
	)
	return nil
}
