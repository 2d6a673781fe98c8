// Package objectstore ingests artifacts into S3-compatible storage and hands
// them to the model as presigned URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/edgard/nightguide/internal/config"
	"github.com/edgard/nightguide/internal/ingest"
)

const (
	defaultPresignTTL = 24 * time.Hour
	labelMetadataKey  = "label"
)

// API is the subset of *s3.Client used by Store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used by Store.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options locate uploaded objects.
type Options struct {
	Bucket     string
	Prefix     string
	PresignTTL time.Duration
}

// Store is an ingest.RemoteService backed by an S3 bucket. Objects are ready
// as soon as HeadObject sees them.
type Store struct {
	api     API
	presign Presigner
	opts    Options
	log     *slog.Logger
}

// New creates a Store from explicit clients.
func New(api API, presign Presigner, opts Options, log *slog.Logger) (*Store, error) {
	if api == nil || presign == nil {
		return nil, errors.New("objectstore: s3 client and presigner are required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("objectstore: bucket is required")
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = defaultPresignTTL
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		api:     api,
		presign: presign,
		opts:    opts,
		log:     log.With("provider", "s3", "bucket", opts.Bucket),
	}, nil
}

// NewFromConfig builds the AWS SDK client from configuration. Static
// credentials are used when both keys are set, otherwise the default chain.
func NewFromConfig(ctx context.Context, cfg config.S3Config, log *slog.Logger) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return New(client, s3.NewPresignClient(client), Options{
		Bucket:     cfg.Bucket,
		Prefix:     cfg.Prefix,
		PresignTTL: cfg.PresignTTL,
	}, log)
}

// Submit uploads the local file under <prefix>/<uuid>-<basename>.
func (s *Store) Submit(ctx context.Context, a ingest.Artifact) (ingest.Record, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return ingest.Record{}, fmt.Errorf("%w: %w", ingest.ErrSubmissionRejected, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ingest.Record{}, fmt.Errorf("%w: %w", ingest.ErrSubmissionRejected, err)
	}

	key := path.Join(strings.Trim(s.opts.Prefix, "/"), uuid.NewString()+"-"+filepath.Base(a.Path))
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		Metadata:      map[string]string{labelMetadataKey: a.Label},
	}
	if a.Kind != "" {
		in.ContentType = aws.String(a.Kind)
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		return ingest.Record{}, fmt.Errorf("%w: put %s: %w", ingest.ErrSubmissionRejected, key, err)
	}

	s.log.DebugContext(ctx, "Object uploaded", "key", key, "size", info.Size())
	return ingest.Record{
		ID:     key,
		Label:  a.Label,
		Kind:   a.Kind,
		Status: ingest.StatusSubmitted,
	}, nil
}

// Status checks the object exists and presigns a GET URL for it.
func (s *Store) Status(ctx context.Context, id string) (ingest.Record, error) {
	head, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		if isNotFound(err) {
			return ingest.Record{}, fmt.Errorf("%w: %w", ingest.ErrRecordNotFound, err)
		}
		return ingest.Record{}, fmt.Errorf("head %s: %w", id, err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(id),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.opts.PresignTTL
	})
	if err != nil {
		return ingest.Record{}, fmt.Errorf("presign %s: %w", id, err)
	}

	return ingest.Record{
		ID:       id,
		Label:    head.Metadata[labelMetadataKey],
		Kind:     aws.ToString(head.ContentType),
		Status:   ingest.StatusReady,
		Location: req.URL,
	}, nil
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
