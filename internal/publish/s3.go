// Package publish uploads finished animations to object storage.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"

	"media-animator/internal/domain"
)

const contentType = "image/webp"

// putObjectAPI is the subset of *s3.Client used for uploads.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher copies each artifact to bucket/prefix/name.webp.
type S3Publisher struct {
	client putObjectAPI
	bucket string
	prefix string
	logger logrus.FieldLogger
	open   func(name string) (*os.File, error)
}

// NewS3Publisher loads the default AWS credential chain for settings.Region.
func NewS3Publisher(ctx context.Context, settings domain.PublishSettings, logger logrus.FieldLogger) (*S3Publisher, error) {
	if !settings.Enabled() {
		return nil, fmt.Errorf("publish bucket is not configured")
	}

	var opts []func(*config.LoadOptions) error
	if settings.Region != "" {
		opts = append(opts, config.WithRegion(settings.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Publisher(s3.NewFromConfig(cfg), settings, logger), nil
}

func newS3Publisher(client putObjectAPI, settings domain.PublishSettings, logger logrus.FieldLogger) *S3Publisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &S3Publisher{
		client: client,
		bucket: settings.Bucket,
		prefix: slug.Make(settings.Prefix),
		logger: logger,
		open:   os.Open,
	}
}

// Key returns the object key an artifact at path is stored under.
func (p *S3Publisher) Key(path string) string {
	name := filepath.Base(path)
	if p.prefix == "" {
		return name
	}
	return p.prefix + "/" + name
}

// Publish uploads path and returns its s3:// location.
func (p *S3Publisher) Publish(ctx context.Context, path string) (string, error) {
	f, err := p.open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	key := p.Key(path)
	if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", p.bucket, key, err)
	}

	location := "s3://" + p.bucket + "/" + strings.TrimPrefix(key, "/")
	p.logger.WithFields(logrus.Fields{
		"output":   path,
		"location": location,
		"bytes":    info.Size(),
	}).Info("artifact published")
	return location, nil
}
