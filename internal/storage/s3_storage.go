package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"greendrake/chambers/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// signatureExtensions maps the accepted upload content types to key suffixes.
var signatureExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// IS3Storage defines the interface for S3 operations.
type IS3Storage interface {
	// PresignSignatureUpload returns a PUT URL and the object key the client
	// must report back when deciding on the proposal.
	PresignSignatureUpload(ctx context.Context, prefix, contentType string) (string, string, error)
	PresignGetURL(ctx context.Context, key string) (string, error)
	GetObject(ctx context.Context, key string) ([]byte, string, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

// NewS3Client builds an S3 client from the static credentials in cfg.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx,
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(client *s3.Client, cfg *config.Config) IS3Storage {
	return &s3Storage{
		cfg:           cfg,
		s3Client:      client,
		presignClient: s3.NewPresignClient(client),
	}
}

// SignatureObjectKey names a fresh object under prefix for the given content type.
func SignatureObjectKey(prefix, contentType string) (string, error) {
	ext, ok := signatureExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}
	return prefix + uuid.NewString() + ext, nil
}

func (s *s3Storage) PresignSignatureUpload(ctx context.Context, prefix, contentType string) (string, string, error) {
	objectKey, err := SignatureObjectKey(prefix, contentType)
	if err != nil {
		return "", "", err
	}
	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.uploadTTL()))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}
	return req.URL, objectKey, nil
}

func (s *s3Storage) PresignGetURL(ctx context.Context, key string) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.uploadTTL()))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned GET URL for key %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *s3Storage) uploadTTL() time.Duration {
	if s.cfg.SignatureUploadTTL > 0 {
		return s.cfg.SignatureUploadTTL
	}
	return 15 * time.Minute
}

func (s *s3Storage) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, "", fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, aws.ToString(out.ContentType), nil
}

func (s *s3Storage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}
