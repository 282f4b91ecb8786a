package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"wsiserve/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type gcsSession struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// OpenGCS expects bucket and optionally credentialsJSON (base64 encoded
// service account key) and prefix. Without credentials the application
// default credentials are used.
func OpenGCS(ctx context.Context, accessInfo map[string]string) (Session, error) {
	bucketName := accessInfo["bucket"]
	if bucketName == "" {
		return nil, fmt.Errorf("missing required accessInfo key: bucket")
	}

	var opts []option.ClientOption
	if encoded := accessInfo["credentialsJSON"]; encoded != "" {
		credentialsJSON, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode credentialsJSON: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &gcsSession{
		client: client,
		bucket: client.Bucket(bucketName),
		name:   bucketName,
		prefix: accessInfo["prefix"],
	}, nil
}

func (g *gcsSession) Put(ctx context.Context, relPath string, r io.Reader) error {
	objectName, err := objectKey(g.prefix, relPath)
	if err != nil {
		return err
	}

	wc := g.bucket.Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType(relPath)

	if _, err = io.Copy(wc, r); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Debugf("Uploaded object '%s' to bucket '%s'", objectName, g.name)
	return nil
}

func (g *gcsSession) Close() error {
	return g.client.Close()
}
