package datastore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/rs/zerolog"
)

type (
	S3Config struct {
		Bucket   string
		Region   string
		Endpoint string
		// MaxRetryElapsed bounds retries of one call. Zero means 30s.
		MaxRetryElapsed time.Duration
	}

	S3DataStore struct {
		cfg        S3Config
		client     *s3.S3
		uploader   *s3manager.Uploader
		downloader *s3manager.Downloader
	}
)

const parquetContentType = "application/vnd.apache.parquet"

func NewS3DataStore(cfg S3Config) (*S3DataStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing S3 bucket: %w", utils.ErrInvalidConfig)
	}
	if cfg.MaxRetryElapsed == 0 {
		cfg.MaxRetryElapsed = 30 * time.Second
	}

	s3Config := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewEnvCredentials(),
	}
	if cfg.Endpoint != "" {
		s3Config.Endpoint = aws.String(cfg.Endpoint)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	s3Session, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}

	return &S3DataStore{
		cfg:        cfg,
		client:     s3.New(s3Session),
		uploader:   s3manager.NewUploader(s3Session),
		downloader: s3manager.NewDownloader(s3Session),
	}, nil
}

func (sds *S3DataStore) LocalPath(string) string {
	return ""
}

func (sds *S3DataStore) Put(ctx context.Context, key string, data []byte) error {
	logger := zerolog.Ctx(ctx)
	s := time.Now()
	err := utils.ReliableRetry(ctx, sds.cfg.MaxRetryElapsed, func(ctx context.Context) error {
		_, err := sds.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(sds.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(parquetContentType),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("key", key).Int("bytes", len(data)).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")
	return nil
}

func (sds *S3DataStore) Get(ctx context.Context, key string) ([]byte, error) {
	logger := zerolog.Ctx(ctx)
	buf := &aws.WriteAtBuffer{}

	s := time.Now()
	err := utils.ReliableRetry(ctx, sds.cfg.MaxRetryElapsed, func(ctx context.Context) error {
		_, err := sds.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
			Bucket: aws.String(sds.cfg.Bucket),
			Key:    aws.String(key),
		})
		return classify(key, err)
	})
	if err != nil {
		return nil, fmt.Errorf("error downloading from s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("key", key).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("downloaded file from s3")
	return buf.Bytes(), nil
}

func (sds *S3DataStore) Exists(ctx context.Context, key string) (bool, error) {
	err := utils.ReliableRetry(ctx, sds.cfg.MaxRetryElapsed, func(ctx context.Context) error {
		_, err := sds.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(sds.cfg.Bucket),
			Key:    aws.String(key),
		})
		return classify(key, err)
	})
	if errors.Is(err, utils.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error in HeadObject: %w", err)
	}
	return true, nil
}

func (sds *S3DataStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := utils.ReliableRetry(ctx, sds.cfg.MaxRetryElapsed, func(ctx context.Context) error {
		keys = keys[:0]
		return sds.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(sds.cfg.Bucket),
			Prefix: aws.String(prefix),
		}, func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("error in ListObjectsV2Pages: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (sds *S3DataStore) Shutdown(context.Context) error {
	return nil
}

// classify turns a missing object into utils.ErrNotFound so retries stop.
func classify(key string, err error) error {
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("%s: %w", key, utils.ErrNotFound)
		case s3.ErrCodeNoSuchBucket:
			return fmt.Errorf("bucket: %s: %w", aerr.Message(), utils.ErrInvalidConfig)
		}
	}
	return err
}
