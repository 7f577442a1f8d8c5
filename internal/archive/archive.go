// Package archive persists raw model responses so operators can inspect
// what the model actually said when an extraction was discarded or fought
// the normalizer. Writes are best-effort; the pipeline never fails a job
// over a missing transcript.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store writes one transcript per call, keyed by document id and capture
// time so re-extractions of the same document don't overwrite each other.
type Store interface {
	Save(ctx context.Context, documentID string, raw []byte) error
}

func transcriptKey(documentID string, now time.Time) string {
	return fmt.Sprintf("transcripts/%s/%s.json", documentID, now.UTC().Format("20060102T150405.000"))
}

// LocalStore writes transcripts under a base directory. Used in dev.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) *LocalStore {
	if baseDir == "" {
		baseDir = "./transcripts"
	}
	return &LocalStore{baseDir: baseDir}
}

func (l *LocalStore) Save(_ context.Context, documentID string, raw []byte) error {
	path := filepath.Join(l.baseDir, filepath.FromSlash(transcriptKey(documentID, time.Now())))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// S3Store writes transcripts to a bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// S3Options configure the bucket client. Endpoint and path-style are for
// S3-compatible stores like MinIO.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: opts.PathStyle,
					SigningRegion:     opts.Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
	})
	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

func (s *S3Store) Save(ctx context.Context, documentID string, raw []byte) error {
	key := transcriptKey(documentID, time.Now())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put transcript: %w", err)
	}
	return nil
}
