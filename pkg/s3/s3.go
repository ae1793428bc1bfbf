package s3

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"video-accounts/cmd/config"
)

// uploadAPI is the subset of s3manager.Uploader used here.
type uploadAPI interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// Exporter writes watch-history documents to a single bucket.
type Exporter struct {
	bucket   string
	uploader uploadAPI
}

func NewExporter(cfg config.AWSConfig) (*Exporter, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}
	return &Exporter{bucket: cfg.S3Bucket, uploader: s3manager.NewUploader(sess)}, nil
}

// ExportKey is the object key for one export of a user's watch history.
func ExportKey(userID uint) string {
	return fmt.Sprintf("watch-exports/%d/%s.json", userID, uuid.New().String())
}

// Upload stores body under key and returns the object location.
func (e *Exporter) Upload(ctx context.Context, key string, body []byte) (string, error) {
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := e.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "uploading %s to s3", key)
	}
	return result.Location, nil
}
