package etl

import (
	"bytes"
	"context"
	"strings"

	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

// S3Options configures an S3-compatible endpoint such as MinIO.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// S3Store reads and writes source files in one bucket.
type S3Store struct {
	Client s3iface.S3API
	Bucket string
}

// NewS3Store builds a path-style client with static credentials, which is
// what MinIO expects.
func NewS3Store(opts S3Options) (*S3Store, error) {
	cfg := &aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(!opts.UseSSL),
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			scheme := "http://"
			if opts.UseSSL {
				scheme = "https://"
			}
			endpoint = scheme + endpoint
		}
		cfg.Endpoint = aws.String(endpoint)
	}
	if opts.AccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating S3 session")
	}
	return &S3Store{Client: s3.New(sess), Bucket: opts.Bucket}, nil
}

func (s *S3Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	result, err := s.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.Wrapf(ErrObjectNotFound, "s3://%s/%s", s.Bucket, key)
		}
		return nil, errors.Wrapf(err, "fetching S3 object s3://%s/%s", s.Bucket, key)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, errors.Wrapf(err, "reading S3 object s3://%s/%s", s.Bucket, key)
	}
	logger.Debugf("Fetched %d bytes from s3://%s/%s", buf.Len(), s.Bucket, key)
	return buf.Bytes(), nil
}

// CheckConnection verifies the endpoint answers and the bucket exists.
func (s *S3Store) CheckConnection(ctx context.Context) error {
	_, err := s.Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.Bucket)})
	if err != nil {
		if isS3NotFound(err) {
			return errors.Wrapf(ErrObjectNotFound, "bucket %s", s.Bucket)
		}
		return errors.Wrapf(err, "reaching bucket %s", s.Bucket)
	}
	return nil
}

func (s *S3Store) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := s.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return errors.Wrapf(err, "putting S3 object s3://%s/%s", s.Bucket, key)
	}
	return nil
}

// EnsureBucket creates the bucket when it is missing.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	err := s.CheckConnection(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrObjectNotFound) {
		return err
	}
	if _, err := s.Client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.Bucket)}); err != nil {
		return errors.Wrapf(err, "creating bucket %s", s.Bucket)
	}
	logger.Infof("Created bucket %s", s.Bucket)
	return nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
