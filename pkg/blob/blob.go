// Package blob stores uploaded media on S3-compatible object storage
// and hands back public URLs for message content.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
)

const putTimeout = 10 * time.Second

// Store uploads objects to a single bucket.
type Store struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

// New creates a blob store from config. Static credentials win when set;
// otherwise the default AWS chain (env, shared config, instance role) is
// used. Path-style addressing is forced so MinIO and other S3-compatible
// endpoints work without DNS tricks.
func New(cfg config.BlobConfig) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.Contains(endpoint, "://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" && cfg.Endpoint != "" {
		publicBase = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		if !strings.Contains(publicBase, "://") {
			publicBase = "https://" + publicBase
		}
	}
	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
	}, nil
}

// Put uploads an object and returns its public URL. The write is bounded
// by an internal timeout on top of the caller's context.
func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		logger.Error("blob_put_failed", "bucket", s.bucket, "key", key, "error", err)
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	logger.Info("blob_stored", "bucket", s.bucket, "key", key, "content_type", contentType)
	return s.publicBase + "/" + key, nil
}
