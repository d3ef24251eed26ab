// Package s3store provides an S3 tape backend. Each tape is one object;
// custom endpoints (MinIO, LocalStack) are addressed path-style.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/tape"
)

// Config holds configuration for the S3 backend.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix    string // Optional key prefix, e.g. "tapes/"
	Extension string // Object key suffix, e.g. ".yaml"

	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

var _ store.Backend = (*Backend)(nil)

// Backend stores tapes as objects in a bucket.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
	ext    string
}

// Open loads the AWS configuration and creates a Backend.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.Endpoint != "" {
		// S3-compatible stores often reject the newer default checksums.
		loadOpts = append(loadOpts,
			config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
			config.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})
	return New(client, cfg.Bucket, cfg.Prefix, cfg.Extension), nil
}

// New wraps an existing client.
func New(client *s3.Client, bucket, prefix, ext string) *Backend {
	return &Backend{client: client, bucket: bucket, prefix: prefix, ext: ext}
}

func (b *Backend) key(name string) string { return b.prefix + name + b.ext }

// Open implements store.Backend.
func (b *Backend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get failed for %s: %w", name, err)
	}
	return out.Body, nil
}

// Create implements store.Backend. The object is uploaded on Commit; S3 puts
// are atomic so readers never see a partial tape.
func (b *Backend) Create(ctx context.Context, name string) (tape.Blob, error) {
	return &blob{ctx: ctx, backend: b, name: name}, nil
}

func (b *Backend) put(ctx context.Context, name string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(b.ext)),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed for %s: %w", name, err)
	}
	return nil
}

// Remove implements store.Backend. DeleteObject succeeds for missing keys, so
// existence is checked first.
func (b *Backend) Remove(ctx context.Context, name string) error {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("tape %q: %w", name, store.ErrNotFound)
		}
		return fmt.Errorf("s3 head failed for %s: %w", name, err)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed for %s: %w", name, err)
	}
	return nil
}

// List implements store.Backend.
func (b *Backend) List(ctx context.Context, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	names := []string{}
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasPrefix(key, b.prefix) || !strings.HasSuffix(key, b.ext) {
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(key, b.prefix), b.ext)
			if name == "" {
				continue
			}
			if pattern == "" || doublestar.MatchUnvalidated(pattern, name) {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error { return nil }

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func contentType(ext string) string {
	switch ext {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}

type blob struct {
	ctx     context.Context
	backend *Backend
	name    string
	buf     bytes.Buffer

	committed bool
	closed    bool
}

func (w *blob) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("tape %q: %w", w.name, store.ErrBlobClosed)
	}
	return w.buf.Write(p)
}

func (w *blob) Commit() error {
	if w.committed {
		return nil
	}
	if w.closed {
		return fmt.Errorf("tape %q: %w", w.name, store.ErrBlobClosed)
	}
	if err := w.backend.put(w.ctx, w.name, w.buf.Bytes()); err != nil {
		return err
	}
	w.committed = true
	return nil
}

func (w *blob) Close() error {
	w.closed = true
	return nil
}
