package imagestore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores images with the AWS SDK. A custom endpoint switches to
// path-style addressing so S3-compatible hosts work too.
type S3 struct {
	client       objectPutter
	bucket       string
	publicURL    string
	bucketInPath bool
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3WithClient(client, cfg), nil
}

func newS3WithClient(client objectPutter, cfg S3Config) *S3 {
	s := &S3{client: client, bucket: cfg.Bucket, publicURL: cfg.PublicURL, bucketInPath: true}
	if s.publicURL == "" {
		if cfg.Endpoint != "" {
			s.publicURL = cfg.Endpoint
		} else {
			s.publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
			s.bucketInPath = false
		}
	}
	return s
}

func (s *S3) Upload(ctx context.Context, image Image) (string, error) {
	contentType, err := validate(image)
	if err != nil {
		return "", err
	}
	key := objectKey(image.Owner, contentType)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image.Data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"owner": image.Owner},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if !s.bucketInPath {
		return joinURL(s.publicURL, "", key), nil
	}
	return joinURL(s.publicURL, s.bucket, key), nil
}
