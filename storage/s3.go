package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/5amCurfew/xtkt-target/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
)

const (
	s3Scheme             = "s3"
	defaultAWSRegion     = "us-east-1"
	defaultAWSS3Endpoint = "s3.amazonaws.com"
)

// S3Store uploads to an S3 or S3-compatible bucket
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

func NewS3Store(ctx context.Context, config models.Config) (*S3Store, error) {
	region := config.AWSRegion
	if region == "" {
		region = defaultAWSRegion
	}

	options := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(region),
	}

	if config.LogLevel == "trace" {
		options = append(options, awsConfig.WithClientLogMode(aws.LogRequest))
	}

	endpoint := config.S3Endpoint
	if endpoint != "" {
		if !strings.Contains(endpoint, "://") {
			if isLocalHost(endpoint) {
				endpoint = "http://" + endpoint
			} else {
				endpoint = "https://" + endpoint
			}
		}
		options = append(options, awsConfig.WithBaseEndpoint(endpoint))
	}

	// static credentials when given, otherwise the default provider chain
	if config.AWSAccessKeyID != "" {
		options = append(options, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AWSAccessKeyID, config.AWSSecretKey, ""),
		))
	}

	loaded, err := awsConfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	client := s3.NewFromConfig(loaded, func(o *s3.Options) {
		if config.S3Endpoint != "" && config.S3Endpoint != defaultAWSS3Endpoint {
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.BucketName,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, localPath string, objectKey string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("error opening %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        file,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading s3://%s/%s: %w", s.bucket, objectKey, err)
	}

	uri := fmt.Sprintf("%s://%s/%s", s3Scheme, s.bucket, objectKey)
	log.WithFields(log.Fields{"uri": uri}).Debug("s3 upload complete")
	return uri, nil
}

func (s *S3Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	scheme, bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if scheme != s3Scheme {
		return nil, fmt.Errorf("s3 store cannot open %q", uri)
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", uri, err)
	}
	return output.Body, nil
}

func (s *S3Store) Close() error {
	return nil
}

func isLocalHost(host string) bool {
	return strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1")
}
