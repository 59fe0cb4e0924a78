package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// S3Options configures the S3 object getter. Empty keys use the default credential chain.
type S3Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// S3Client reads objects for s3:// inputs.
type S3Client struct {
	client *s3.Client
}

// NewS3Client loads AWS configuration once; no request is made until GetObject.
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Client{client: client}, nil
}

func (c *S3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := c.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (l *Loader) fetchS3(ctx context.Context, u *url.URL) ([]byte, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, extract.Errorf(extract.KindFetch, "s3 url needs bucket and key: %s", u.String())
	}
	if l.objects == nil {
		return nil, extract.Errorf(extract.KindFetch, "s3 fetching is not configured")
	}
	start := time.Now()
	data, err := l.objects.GetObject(ctx, bucket, key)
	if err != nil {
		l.logger.Error("source.s3.get_error", "object", formatBucketKey(bucket, key), "error", err)
		return nil, extract.NewError(extract.KindFetch, "get "+formatBucketKey(bucket, key), err)
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, extract.Errorf(extract.KindFetch, "object exceeds %d bytes", l.maxBytes)
	}
	l.logger.Info("source.s3.response",
		"object", formatBucketKey(bucket, key),
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}

func formatBucketKey(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
