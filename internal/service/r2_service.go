package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	cfg "github.com/maheshrc27/podcast-studio/configs"
)

// headerSize is the number of leading bytes filetype needs to recognise a
// container format.
const headerSize = 262

// ObjectStorage is the part of the bucket the pipeline needs: handing out
// read URLs to the compute service and checking rendered artifacts.
type ObjectStorage interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	IsVideo(ctx context.Context, key string) (bool, error)
}

type R2Service struct {
	config cfg.R2
	client *s3.Client
}

func NewR2Service(ctx context.Context, c cfg.R2) (*R2Service, error) {
	return newR2Service(ctx, c, fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID))
}

func newR2Service(ctx context.Context, c cfg.R2, endpoint string) (*R2Service, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &R2Service{config: c, client: client}, nil
}

// PresignGet returns a URL that allows reading key without credentials
// until ttl elapses.
func (r *R2Service) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigner := s3.NewPresignClient(r.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return req.URL, nil
}

// IsVideo reads the head of the object and reports whether it is a video
// container.
func (r *R2Service) IsVideo(ctx context.Context, key string) (bool, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", headerSize-1)),
	})
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	defer out.Body.Close()

	head, err := io.ReadAll(io.LimitReader(out.Body, headerSize))
	if err != nil {
		return false, err
	}
	return filetype.IsVideo(head), nil
}
