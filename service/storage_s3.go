package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Archive implements Archive for an s3://bucket/prefix uri.
// Credentials are read from the environment (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY or the shared config)
type S3Archive struct {
	client     *s3.Client
	bucket     string
	prefix     string
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Archive creates a new S3Archive
func NewS3Archive(ctx context.Context, archiveURI string) (*S3Archive, error) {
	bucket, prefix, err := parseS3URI(archiveURI)
	if err != nil {
		return nil, fmt.Errorf("NewS3Archive.%w", err)
	}

	var opts []func(*config.LoadOptions) error
	if region := os.Getenv("AWS_REGION"); region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); id != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, os.Getenv("AWS_SESSION_TOKEN"))))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewS3Archive config.LoadDefaultConfig: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: prefix,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024 // 10MB per part
		}),
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = 10 * 1024 * 1024
		}),
	}, nil
}

func parseS3URI(archiveURI string) (string, string, error) {
	u, err := url.Parse(archiveURI)
	if err != nil {
		return "", "", fmt.Errorf("parseS3URI: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("parseS3URI: expecting s3://bucket[/prefix], got %s", archiveURI)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func (sa *S3Archive) key(relPath string) string {
	return path.Join(sa.prefix, path.Clean(filepath.ToSlash(relPath)))
}

// Save implements Archive
func (sa *S3Archive) Save(ctx context.Context, localFile, relPath string) (string, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer f.Close()

	key := sa.key(relPath)
	if _, err := sa.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(sa.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("Save: failed to upload object %s:%s: %w", sa.bucket, key, err)
	}
	return "s3://" + sa.bucket + "/" + key, nil
}

// Fetch implements Archive
func (sa *S3Archive) Fetch(ctx context.Context, relPath, localFile string) error {
	if err := os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		return fmt.Errorf("Fetch.MkdirAll: %w", err)
	}
	file, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("Fetch: failed to create file %s: %w", localFile, err)
	}
	defer file.Close()

	key := sa.key(relPath)
	if _, err = sa.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(sa.bucket),
		Key:    aws.String(key),
	}); err != nil {
		os.Remove(localFile)
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return ErrFileNotFound{"s3://" + sa.bucket + "/" + key}
		}
		return fmt.Errorf("Fetch: failed to download object %s:%s: %w", sa.bucket, key, err)
	}
	return nil
}
