package journal

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store writes each flush as its own object:
//
//	<prefix><pageID>/<unix-nanos>-<n>.ndjson
//
// Load concatenates the objects of a page in key order.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	seq    atomic.Uint64
	now    func() time.Time
}

// NewS3Store creates an S3 journal store.
//
// Parameters:
//   - client: *s3.Client or any S3API
//   - bucket: S3 bucket name
//   - prefix: Key prefix for journals (e.g., "journals/")
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *S3Store) pagePrefix(pageID string) string {
	return s.prefix + pageID + "/"
}

// Save uploads entries as a new object under the page prefix.
func (s *S3Store) Save(ctx context.Context, pageID string, entries []Entry) error {
	if pageID == "" || strings.Contains(pageID, "/") {
		return fmt.Errorf("journal: invalid page id %q", pageID)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, entries); err != nil {
		return err
	}
	now := s.now().UTC()
	key := fmt.Sprintf("%s%020d-%06d%s", s.pagePrefix(pageID), now.UnixNano(), s.seq.Add(1), diskExt)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"page-id":    pageID,
			"entries":    fmt.Sprint(len(entries)),
			"flush-time": now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("journal: s3 put %s: %w", key, err)
	}
	return nil
}

// Load downloads and concatenates every object of the page.
func (s *S3Store) Load(ctx context.Context, pageID string) ([]Entry, error) {
	keys, err := s.list(ctx, s.pagePrefix(pageID), time.Time{})
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNotFound
	}
	sort.Strings(keys)

	var out []Entry
	for _, key := range keys {
		obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return out, fmt.Errorf("journal: s3 get %s: %w", key, err)
		}
		entries, err := Decode(obj.Body)
		obj.Body.Close()
		if err != nil {
			return out, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Cleanup deletes journal objects older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) error {
	keys, err := s.list(ctx, s.prefix, s.now().Add(-maxAge))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("journal: s3 delete %s: %w", key, err)
		}
	}
	return nil
}

// list returns the keys under prefix. A non-zero before keeps only objects
// last modified before it.
func (s *S3Store) list(ctx context.Context, prefix string, before time.Time) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("journal: s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if !before.IsZero() && (obj.LastModified == nil || !obj.LastModified.Before(before)) {
				continue
			}
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// S3Config holds the settings used by NewS3Client.
type S3Config struct {
	Region          string
	Endpoint        string // Custom endpoint, e.g. a MinIO URL
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client builds an S3 client from static settings. Without an access
// key the client has no credentials provider and requests are unsigned.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "replay config",
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}
	return s3.New(opts)
}
