// Package s3 provides an S3 state persistence backend.
//
// The document is stored as a single object. S3 object writes are atomic,
// so a crash mid-save leaves the previous document intact. The backend
// suits containerized deployments with no stable local disk; any
// S3-compatible endpoint (MinIO, Localstack) works through a custom
// endpoint in the factory.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/langmirror/pkg/state"
)

// S3Persistence stores the document as one object in a bucket.
type S3Persistence struct {
	client *s3.Client
	bucket string
	key    string
}

// Config contains configuration for the S3 backend.
type Config struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name. Must already exist.
	Bucket string

	// KeyPrefix is an optional prefix; the document is stored at
	// "<prefix>/state.json"
	KeyPrefix string
}

// New creates an S3 persistence backend. The bucket must already exist;
// this function does not create it.
func New(ctx context.Context, cfg Config) (*S3Persistence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	return &S3Persistence{
		client: cfg.Client,
		bucket: cfg.Bucket,
		key:    path.Join(cfg.KeyPrefix, "state.json"),
	}, nil
}

// Load fetches and decodes the document object.
// Returns ErrNotFound when the object doesn't exist.
func (p *S3Persistence) Load(ctx context.Context) (*state.Document, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, &state.StateError{Code: state.ErrNotFound, Message: "no state document saved", Key: p.key}
		}
		return nil, fmt.Errorf("failed to get state object %s/%s: %w", p.bucket, p.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read state object body: %w", err)
	}

	return state.DecodeDocument(data)
}

// Save uploads the document, replacing the previous object.
func (p *S3Persistence) Save(ctx context.Context, doc *state.Document) error {
	data, err := state.EncodeDocument(doc)
	if err != nil {
		return err
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put state object %s/%s: %w", p.bucket, p.key, err)
	}

	return nil
}

// Close is a no-op; the S3 client is shared and owned by the caller.
func (p *S3Persistence) Close() error {
	return nil
}
