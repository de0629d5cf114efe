package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/kvgateway/interfaces"
)

// S3Config configures an S3Store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // S3-compatible endpoint, http:// is allowed

	ForcePathStyle bool

	// Static credentials. When empty, the ambient AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// S3Store implements an object store on Amazon S3 or a compatible service.
//
// Requests carry no client-side timeout. Conditional writes are sent as
// If-Match / If-None-Match headers and rejected writes surface as
// interfaces.ErrPreconditionFailed.
type S3Store struct {
	client      *s3.S3
	bucketName  string
	log         *slog.Logger
	locationURI string
}

// NewS3Store creates a new S3 object store.
func NewS3Store(cfg S3Config, log *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: missing S3 bucket", interfaces.ErrConfig)
	}

	uri := fmt.Sprintf("s3://%s?region=%s", cfg.Bucket, cfg.Region)
	if cfg.Endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", cfg.Endpoint)
	}

	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithHTTPClient(&http.Client{Timeout: 0})

	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(cfg.ForcePathStyle)
		if strings.HasPrefix(cfg.Endpoint, "http://") {
			awsCfg = awsCfg.WithDisableSSL(true)
		}
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
		log.Debug("Using embedded S3 credentials")
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client:      s3.New(sess),
		bucketName:  cfg.Bucket,
		log:         log,
		locationURI: uri,
	}, nil
}

// Get retrieves an object and its ETag.
func (s *S3Store) Get(ctx context.Context, key string) (*interfaces.Object, error) {
	start := time.Now()

	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, interfaces.ErrObjectNotFound
		}

		s.log.Error("Failed to get object from S3",
			slog.String("bucket", s.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	s.log.Debug("Fetched object from S3",
		slog.String("bucket", s.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return &interfaces.Object{Data: data, ETag: aws.StringValue(result.ETag)}, nil
}

// Put uploads data, optionally conditioned on the current ETag.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, opts interfaces.PutOptions) (string, error) {
	req, out := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	req.SetContext(ctx)

	if opts.IfMatch != "" {
		req.HTTPRequest.Header.Set("If-Match", opts.IfMatch)
	}
	if opts.IfNoneMatch {
		req.HTTPRequest.Header.Set("If-None-Match", "*")
	}

	if err := req.Send(); err != nil {
		if isS3PreconditionFailed(err) {
			return "", interfaces.ErrPreconditionFailed
		}
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}

	s.log.Debug("Stored object in S3",
		slog.String("bucket", s.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)))

	return aws.StringValue(out.ETag), nil
}

// Delete removes an object. Missing objects are not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// List returns all keys starting with prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in S3: %w", err)
	}
	return keys, nil
}

// Name returns a unique identifier for this object store.
func (s *S3Store) Name() string {
	return fmt.Sprintf("s3-%s", s.bucketName)
}

// LocationURI returns the URI that identifies this object store.
func (s *S3Store) LocationURI() string {
	return s.locationURI
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	var reqErr awserr.RequestFailure
	return errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound
}

// isS3PreconditionFailed matches both a mismatched ETag (412) and a concurrent
// conditional write that lost the race (409 ConditionalRequestConflict).
func isS3PreconditionFailed(err error) bool {
	var reqErr awserr.RequestFailure
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.StatusCode() == http.StatusPreconditionFailed || reqErr.StatusCode() == http.StatusConflict
}
