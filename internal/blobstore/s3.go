package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "image-collector/internal/common/errors"
	awsclient "image-collector/internal/common/aws"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Options struct {
	Region          string
	Bucket          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

type S3Store struct {
	client S3API
	opts   S3Options
}

// NewS3Store builds a client from the default credential chain, or from
// static keys when both are set. Endpoint targets S3-compatible services.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awsclient.LoadConfig(ctx, opts.Region, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return NewS3StoreWith(client, opts), nil
}

func NewS3StoreWith(client S3API, opts S3Options) *S3Store {
	return &S3Store{client: client, opts: opts}
}

func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) Put(ctx context.Context, key string, data []byte, opts PutOptions) (PutResult, error) {
	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.opts.Bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		in.CacheControl = aws.String(opts.CacheControl)
	}
	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return PutResult{}, apperrors.NewStorageFailedError(key, err)
	}
	return PutResult{Key: key, URL: s.URL(key), ETag: aws.ToString(out.ETag)}, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, apperrors.NewStorageFailedError(key, err)
	}
	return Info{
		Key:          key,
		Size:         int64Value(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         aws.ToString(out.ETag),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return apperrors.NewStorageFailedError(key, err)
	}
	return nil
}

// URL is the public address of key.
func (s *S3Store) URL(key string) string {
	switch {
	case s.opts.PublicURL != "":
		return joinURL(s.opts.PublicURL, key)
	case s.opts.Endpoint != "":
		return joinURL(joinURL(s.opts.Endpoint, s.opts.Bucket), key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, key)
	}
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func int64Value(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case *int64:
		return aws.ToInt64(n)
	}
	return 0
}
