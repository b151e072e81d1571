package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultMaxMediaBytes = 25 << 20

var ErrMediaTooLarge = errors.New("archive: media exceeds size limit")

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type mediaRecorder interface {
	SetArchivedMedia(ctx context.Context, messageID, key string) error
}

// MediaItem is one inbound attachment to copy.
type MediaItem struct {
	MessageID  string
	URL        string
	MimeType   string
	ReceivedAt time.Time
}

// Store copies vendor media into S3 before the vendor URL expires.
type Store struct {
	bucket   string
	s3Client S3API
	recorder mediaRecorder
	http     *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, recorder mediaRecorder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		bucket:   strings.TrimSpace(bucket),
		s3Client: s3Client,
		recorder: recorder,
		http:     &http.Client{Timeout: 30 * time.Second},
		maxBytes: defaultMaxMediaBytes,
		logger:   logger,
	}
}

// WithHTTPClient overrides the client used to download media.
func (s *Store) WithHTTPClient(c *http.Client) *Store {
	if c != nil {
		s.http = c
	}
	return s
}

func (s *Store) WithMaxBytes(n int64) *Store {
	if n > 0 {
		s.maxBytes = n
	}
	return s
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// MediaKey is the object key for a message's media.
func MediaKey(messageID string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("media/%d/%02d/%02d/%s", at.Year(), at.Month(), at.Day(), messageID)
}

// ArchiveMedia downloads item.URL, stores it under MediaKey and records the
// key on the message row.
func (s *Store) ArchiveMedia(ctx context.Context, item MediaItem) (string, error) {
	if !s.Enabled() || strings.TrimSpace(item.URL) == "" {
		return "", nil
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now()
	}

	data, contentType, err := s.download(ctx, item.URL)
	if err != nil {
		return "", err
	}
	if item.MimeType != "" {
		contentType = item.MimeType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := MediaKey(item.MessageID, item.ReceivedAt)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	if s.recorder != nil {
		if err := s.recorder.SetArchivedMedia(ctx, item.MessageID, key); err != nil {
			return key, fmt.Errorf("archive: record key: %w", err)
		}
	}
	s.logger.Info("archived media to S3", "message_id", item.MessageID, "s3_key", key, "bytes", len(data))
	return key, nil
}

func (s *Store) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("archive: build request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("archive: download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("archive: download media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("archive: read media: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, "", ErrMediaTooLarge
	}
	return data, resp.Header.Get("Content-Type"), nil
}
