// Package mediastore stores synthesized TTS audio in S3-compatible object
// storage (Cloudflare R2) and hands out public URLs for LINE audio messages.
// The store is optional; when unconfigured the voice pipeline falls back to
// serving audio from the session store via the /audio endpoint.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("mediastore: object not found")

// Config holds media store configuration.
type Config struct {
	Endpoint      string // S3 endpoint URL (e.g., https://account-id.r2.cloudflarestorage.com)
	AccessKeyID   string
	SecretKey     string
	Bucket        string
	PublicBaseURL string // Public URL prefix under which bucket objects are reachable
}

// Client provides object storage operations for generated media.
// A nil Client is valid and reports itself as disabled.
type Client struct {
	s3            *s3.Client
	bucket        string
	publicBaseURL string
}

// New creates a media store client. An empty endpoint disables the store and
// returns (nil, nil).
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.AccessKeyID == "" || cfg.SecretKey == "" || cfg.Bucket == "" || cfg.PublicBaseURL == "" {
		return nil, errors.New("mediastore: credentials, bucket and public base URL are required when an endpoint is set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("mediastore: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // Required for R2
	})

	return &Client{
		s3:            s3Client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Enabled reports whether a media store is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.s3 != nil
}

// Upload stores an object and returns its public URL.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if !c.Enabled() {
		return "", errors.New("mediastore: not configured")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("mediastore: upload %q: %w", key, err)
	}
	return c.PublicURL(key), nil
}

// Download retrieves an object body. Caller must close it.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if !c.Enabled() {
		return nil, ErrNotFound
	}

	result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mediastore: download %q: %w", key, err)
	}
	return result.Body, nil
}

// PublicURL returns the public URL for a stored object key.
func (c *Client) PublicURL(key string) string {
	return c.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}
