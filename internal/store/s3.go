package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/wafbackup/internal/config"
)

// ObjectPutter is the subset of the S3 API the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver copies a finished backup directory to an S3 bucket.
type Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewArchiver returns nil when no bucket is configured.
func NewArchiver(cfg config.S3Config, logger zerolog.Logger) *Archiver {
	if cfg.Bucket == "" {
		return nil
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.Endpoint != "",
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newArchiver(s3.New(opts), cfg.Bucket, cfg.Prefix, logger)
}

func newArchiver(client ObjectPutter, bucket, prefix string, logger zerolog.Logger) *Archiver {
	return &Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "s3-archiver").Str("bucket", bucket).Logger(),
	}
}

// Upload puts every file under root into the bucket below prefix/label and
// returns the object key prefix used.
func (a *Archiver) Upload(ctx context.Context, root, label string) (string, error) {
	base := path.Join(a.prefix, label)
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := path.Join(base, filepath.ToSlash(rel))

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %s: %w", rel, err)
		}
		defer f.Close()

		if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
		}
		a.logger.Debug().Str("key", key).Msg("uploaded artifact")
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", root, err)
	}
	a.logger.Info().Str("prefix", base).Msg("backup archived")
	return base, nil
}
