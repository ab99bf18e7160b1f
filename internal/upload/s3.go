package upload

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/claude/healthtrack/internal/models"
)

// Overridable in tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Store writes objects to S3 or an S3-compatible endpoint using the
// credentials, region and bucket of the request's SyncConfig.
type S3Store struct{}

// NewS3Store creates an S3Store.
func NewS3Store() *S3Store {
	return &S3Store{}
}

func (s *S3Store) PutObject(ctx context.Context, req PutRequest) error {
	client, err := s.client(ctx, req.Config)
	if err != nil {
		return err
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(req.Config.Bucket),
		Key:         aws.String(req.Config.ObjectKey),
		Body:        bytes.NewReader(req.Body),
		ContentType: aws.String(req.ContentType),
	})
	return err
}

func (s *S3Store) client(ctx context.Context, sc models.SyncConfig) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(sc.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			sc.AccessKeyID,
			sc.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	}), nil
}
