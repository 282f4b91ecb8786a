package writerbackends

import (
	"context"
	"fmt"
	"io"

	"wsiserve/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3Session struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// OpenS3 expects accessKey, secretKey, region and bucket. endpoint switches
// to path-style addressing for S3 compatible stores such as MinIO; prefix is
// prepended to every key.
func OpenS3(ctx context.Context, accessInfo map[string]string) (Session, error) {
	bucket := accessInfo["bucket"]
	if bucket == "" || accessInfo["region"] == "" {
		return nil, fmt.Errorf("missing required accessInfo keys: bucket, region")
	}
	if accessInfo["accessKey"] == "" || accessInfo["secretKey"] == "" {
		return nil, fmt.Errorf("missing required accessInfo keys: accessKey, secretKey")
	}

	creds := credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], "")
	opts := s3.Options{
		Region:      accessInfo["region"],
		Credentials: creds,
	}
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)

	return &s3Session{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   accessInfo["prefix"],
	}, nil
}

func (s *s3Session) Put(ctx context.Context, relPath string, r io.Reader) error {
	key, err := objectKey(s.prefix, relPath)
	if err != nil {
		return err
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType(relPath)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, s.bucket, err)
	}
	logger.Debugf("Uploaded object '%s' to bucket '%s'", key, s.bucket)
	return nil
}

func (s *s3Session) Close() error { return nil }
