package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// DefaultURLTTL is how long a signed URL stays valid.
const DefaultURLTTL = 5 * time.Minute

// ErrEmptyKey is returned when asked to sign an empty object key.
var ErrEmptyKey = errors.New("object key is required")

// Config describes the S3-compatible object store.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	URLTTL    time.Duration
}

// Signer issues presigned GET URLs for objects in one bucket.
type Signer struct {
	svc    *s3.S3
	bucket string
	ttl    time.Duration
}

// NewSigner creates a signer. Path-style addressing is forced so MinIO endpoints work.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("missing bucket")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = DefaultURLTTL
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create s3 session: %w", err)
	}

	return &Signer{
		svc:    s3.New(sess),
		bucket: cfg.Bucket,
		ttl:    cfg.URLTTL,
	}, nil
}

// SignGet returns a presigned URL for downloading key.
func (s *Signer) SignGet(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	req, _ := s.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)

	url, err := req.Presign(s.ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return url, nil
}
