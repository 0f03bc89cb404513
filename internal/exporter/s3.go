package exporter

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Store implements ObjectStore against AWS S3. Fetches set the
// requester-pays header, which the public archive bucket requires.
type S3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3Store builds an S3 client with static credentials. Key and secret may
// be empty to fall back to the ambient credential chain.
func NewS3Store(region, key, secret string) (*S3Store, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if key != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(key, secret, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}

	return &S3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Fetch opens the object for streaming. The source archive bucket is
// requester-pays, so every GET carries the requester header.
func (s *S3Store) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		RequestPayer: aws.String(s3.RequestPayerRequester),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, "NotFound":
				return nil, ErrObjectNotFound
			}
		}
		return nil, err
	}
	return out.Body, nil
}

// Upload streams body into the destination bucket under key.
func (s *S3Store) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	return err
}

var _ ObjectStore = (*S3Store)(nil)
