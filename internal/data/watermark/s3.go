package watermark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Key       string `yaml:"key"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type S3Store struct {
	api    ObjectAPI
	bucket string
	key    string
}

// NewS3Client builds a client from the default AWS credential chain. An
// explicit endpoint targets S3-compatible stores such as MinIO.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("watermark: aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func NewS3Store(api ObjectAPI, bucket, key string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("watermark: s3 bucket required")
	}
	if key == "" {
		key = "healthgraph/watermark.json"
	}
	return &S3Store{api: api, bucket: bucket, key: key}, nil
}

func (s *S3Store) Load(ctx context.Context) (time.Time, bool, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key)})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("watermark: s3 get %s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("watermark: s3 read: %w", err)
	}
	return decode(b)
}

func (s *S3Store) Save(ctx context.Context, t time.Time) error {
	b, err := encode(t)
	if err != nil {
		return err
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("watermark: s3 put %s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func (s *S3Store) Clear(ctx context.Context) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key)})
	if err != nil {
		return fmt.Errorf("watermark: s3 delete %s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}
