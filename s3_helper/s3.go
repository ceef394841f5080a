package s3_helper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danthegoodman1/tablesweep/gologger"
	"github.com/danthegoodman1/tablesweep/snapshot"
	"github.com/danthegoodman1/tablesweep/utils"
	"github.com/rs/zerolog"
)

const ExportPrefix = "snapshots/"

var (
	ErrNotConfigured = errors.New("S3_BUCKET_NAME is not set")

	logger = gologger.NewLogger()
)

func Configured() bool {
	return utils.S3_BUCKET_NAME != ""
}

func newSession() (*session.Session, error) {
	s3Config := &aws.Config{
		Region:      aws.String(utils.AWS_DEFAULT_REGION),
		Credentials: credentials.NewEnvCredentials(),
	}
	if utils.S3_ENDPOINT != "" {
		s3Config.Endpoint = aws.String(utils.S3_ENDPOINT)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	s3Session, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}
	return s3Session, nil
}

func WriteBytesToS3(ctx context.Context, fileName string, byteStream io.Reader, contentType *string) (*s3manager.UploadOutput, error) {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	s3Session, err := newSession()
	if err != nil {
		return nil, err
	}

	uploader := s3manager.NewUploader(s3Session)

	input := &s3manager.UploadInput{
		Bucket:      aws.String(utils.S3_BUCKET_NAME),
		Key:         aws.String(fileName),
		Body:        byteStream,
		ContentType: contentType,
	}

	s := time.Now()
	output, err := uploader.UploadWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("fileName", fileName).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")

	return output, nil
}

func ReadBytesFromS3(ctx context.Context, fileName string) ([]byte, error) {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	s3Session, err := newSession()
	if err != nil {
		return nil, err
	}

	downloader := s3manager.NewDownloader(s3Session)

	buf := &aws.WriteAtBuffer{}

	s := time.Now()
	_, err = downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(utils.S3_BUCKET_NAME),
		Key:    aws.String(fileName),
	})
	if err != nil {
		return nil, fmt.Errorf("error downloading from s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("fileName", fileName).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("downloaded file from s3")

	return buf.Bytes(), nil
}

// ExportKey names an export object. ksuids sort by creation time, so listing
// the prefix yields exports oldest first.
func ExportKey() string {
	return ExportPrefix + utils.GenKSortedID("") + ".json"
}

// ExportSnapshot uploads the snapshot document and returns its object key.
func ExportSnapshot(ctx context.Context, snap *snapshot.Snapshot) (string, error) {
	if !Configured() {
		return "", ErrNotConfigured
	}
	b, err := snapshot.Marshal(snap)
	if err != nil {
		return "", err
	}
	key := ExportKey()
	if _, err := WriteBytesToS3(ctx, key, bytes.NewReader(b), aws.String("application/json")); err != nil {
		return "", fmt.Errorf("error in WriteBytesToS3: %w", err)
	}
	return key, nil
}

// FetchSnapshot downloads and decodes a previously exported snapshot.
func FetchSnapshot(ctx context.Context, key string) (*snapshot.Snapshot, error) {
	if !Configured() {
		return nil, ErrNotConfigured
	}
	b, err := ReadBytesFromS3(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("error in ReadBytesFromS3: %w", err)
	}
	return snapshot.Unmarshal(b)
}
