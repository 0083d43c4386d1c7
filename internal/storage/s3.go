// Copyright 2025 James Ross
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/adaspeas/deliveryd/internal/joberr"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Driver lists and streams from an S3-compatible bucket. It reframes the
// "remote object store" half of the storage contract: any S3-compatible
// endpoint (region/endpoint are both configurable) rather than one vendor's
// bespoke REST API.
type S3Driver struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Driver connects to an S3-compatible endpoint. token, when set, is a
// "key:secret" pair for static credentials; empty falls back to the SDK's
// default chain (env, shared config, instance role).
func NewS3Driver(region, endpoint, bucket, basePath, token string) (*S3Driver, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	if token != "" {
		key, secret, ok := strings.Cut(token, ":")
		if !ok {
			return nil, fmt.Errorf("remote token must be key:secret")
		}
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(key, secret, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("new aws session: %w", err)
	}
	return &S3Driver{
		client: s3.New(sess),
		bucket: bucket,
		prefix: strings.Trim(basePath, "/"),
	}, nil
}

func (d *S3Driver) objectKey(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if d.prefix == "" {
		return trimmed
	}
	if trimmed == "" {
		return d.prefix
	}
	return d.prefix + "/" + trimmed
}

// List returns one directory level under path using ListObjectsV2 with a
// "/" delimiter: CommonPrefixes become folders, Contents become files.
func (d *S3Driver) List(ctx context.Context, path string) ([]Entry, error) {
	key := d.objectKey(path)
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	var entries []Entry
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.bucket),
		Prefix:    aws.String(key),
		Delimiter: aws.String("/"),
	}
	err := d.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, p := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(p.Prefix), key), "/")
			if name == "" {
				continue
			}
			entries = append(entries, Entry{
				Name: name,
				Kind: KindDir,
				Path: joinCanonical(path, name),
			})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), key)
			if name == "" {
				continue
			}
			size := aws.Int64Value(obj.Size)
			mod := aws.TimeValue(obj.LastModified)
			entries = append(entries, Entry{
				Name:               name,
				Kind:               KindFile,
				Path:               joinCanonical(path, name),
				Size:               &size,
				Modified:           &mod,
				ContentFingerprint: strings.Trim(aws.StringValue(obj.ETag), `"`),
			})
		}
		return true
	})
	if err != nil {
		return nil, classifyS3Err(fmt.Errorf("list objects: %w", err))
	}
	return entries, nil
}

// Stream opens a fresh GetObject read of storageID, a canonical path
// relative to the driver's base path.
func (d *S3Driver) Stream(ctx context.Context, storageID string) (io.ReadCloser, error) {
	out, err := d.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(storageID)),
	})
	if err != nil {
		return nil, classifyS3Err(fmt.Errorf("get object: %w", err))
	}
	return out.Body, nil
}

func (d *S3Driver) Close() error { return nil }

// classifyS3Err maps AWS error codes onto retry classes so only a
// confirmed missing object fails a job terminally; everything else stays
// retryable.
func classifyS3Err(err error) error {
	var ae awserr.Error
	if errors.As(err, &ae) {
		switch ae.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return joberr.NotFound(err)
		case "AccessDenied":
			return joberr.Denied(err)
		}
	}
	return joberr.Transient(err)
}

func joinCanonical(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
