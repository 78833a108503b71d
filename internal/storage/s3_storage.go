package storage

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/movesintl/moves-study-hub-sub001/internal/config"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
)

// PresignedUpload is a one-off upload slot for a document.
type PresignedUpload struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IDocumentStorage hands out upload URLs for application documents.
type IDocumentStorage interface {
	PresignDocumentUpload(ctx context.Context, applicationID, filename, contentType string, size int64) (*PresignedUpload, error)
}

type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// s3Storage implements IDocumentStorage.
type s3Storage struct {
	bucket        string
	expiry        time.Duration
	presignClient presigner
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(ctx context.Context, cfg *config.Config) (IDocumentStorage, error) {
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

	s3Client := s3.NewFromConfig(awsCfg)
	return newS3Storage(cfg.AwsS3Bucket, cfg.DocumentUploadURLTTL, s3.NewPresignClient(s3Client)), nil
}

func newS3Storage(bucket string, expiry time.Duration, p presigner) *s3Storage {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &s3Storage{bucket: bucket, expiry: expiry, presignClient: p}
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename keeps the base name and replaces anything outside a safe set.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "document"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

// PresignDocumentUpload creates a pre-signed PUT URL bound to the content type and length.
func (s *s3Storage) PresignDocumentUpload(ctx context.Context, applicationID, filename, contentType string, size int64) (*PresignedUpload, error) {
	objectKey := fmt.Sprintf("applications/%s/%s_%s", applicationID, uuid.NewString(), sanitizeFilename(filename))

	presignedReq, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	logger.Debug().Str("key", objectKey).Msg("generated presigned document upload")
	return &PresignedUpload{URL: presignedReq.URL, Key: objectKey, ExpiresAt: time.Now().Add(s.expiry).UTC()}, nil
}
