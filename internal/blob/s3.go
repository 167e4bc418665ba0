package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/covault/covault/internal/common"
)

// S3Config holds the settings for an S3-compatible backend. RootUser and
// RootPassword map onto MINIO_ROOT_USER / MINIO_ROOT_PASSWORD when the
// backend is MinIO.
type S3Config struct {
	Region       string
	Bucket       string
	BaseEndpoint string
	RootUser     string
	RootPassword string
}

// S3 is the Storage implementation over an S3-compatible service.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 builds the client with static credentials and an explicit endpoint.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3) Put(ctx context.Context, fileID string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(fileID),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", fileID, err)
	}
	return nil
}

func (s *S3) ReadRange(ctx context.Context, fileID string, rng Range) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	}
	if rng.Offset > 0 || rng.Length > 0 {
		if rng.Length > 0 {
			in.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1))
		} else {
			in.Range = aws.String(fmt.Sprintf("bytes=%d-", rng.Offset))
		}
	}
	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, common.NewError(common.CodeFileDoesNotExist, "file %q does not exist", fileID)
		}
		return nil, fmt.Errorf("get object %q: %w", fileID, err)
	}
	return out.Body, nil
}

func (s *S3) Delete(ctx context.Context, fileID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", fileID, err)
	}
	return nil
}
