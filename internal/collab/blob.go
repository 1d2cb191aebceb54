// Package collab implements the system's external collaborators: Blob
// (object store), SQL (warehouse/source connections), Process (subprocess
// spawning) and Monitor (metric/trace emission). These are the concrete,
// dependency-backed edges of the system; the core packages (relation,
// depgraph, selector, manifest, extract, sqoop) depend only on the narrow
// interfaces they need.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
)

// Blob is the object-store collaborator.
type Blob interface {
	// GetLastModified probes for key in bucket. If wait is true and the key
	// is absent, it polls until the key appears or the context is done.
	// Without waiting, an absent key returns ok=false; when waiting, a
	// context that ends before the key appears returns an error.
	GetLastModified(ctx context.Context, bucket, key string, wait bool) (t time.Time, ok bool, err error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	PutJSON(ctx context.Context, bucket, key string, doc any) error
	Delete(ctx context.Context, bucket string, keys []string) error
}

// S3Blob implements Blob against an S3-compatible object store.
type S3Blob struct {
	client    *s3.Client
	pollEvery time.Duration
}

// NewS3Blob builds an S3Blob from the default AWS config chain (env vars,
// shared config, IAM role), matching the credential resolution used
// elsewhere in the pack's AWS-backed services.
func NewS3Blob(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (*S3Blob, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Blob{client: s3.NewFromConfig(cfg), pollEvery: 2 * time.Second}, nil
}

// GetLastModified probes once when wait is false. When wait is true and the
// key is absent, it retries on a constant interval via backoff until the key
// appears, a non-not-found error occurs, or ctx is done.
func (b *S3Blob) GetLastModified(ctx context.Context, bucket, key string, wait bool) (time.Time, bool, error) {
	var result time.Time
	found := false

	operation := func() error {
		out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err == nil {
			if out.LastModified != nil {
				result = *out.LastModified
			}
			found = true
			return nil
		}
		if !isNotFound(err) {
			return backoff.Permanent(fmt.Errorf("head s3://%s/%s: %w", bucket, key, err))
		}
		if !wait {
			return nil
		}
		return fmt.Errorf("s3://%s/%s not yet present", bucket, key)
	}

	if !wait {
		if err := operation(); err != nil {
			return time.Time{}, false, err
		}
		return result, found, nil
	}

	bo := backoff.NewConstantBackOff(b.pollEvery)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return time.Time{}, false, err
	}
	return result, found, nil
}

func (b *S3Blob) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (b *S3Blob) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return buf.Bytes(), nil
}

func (b *S3Blob) PutJSON(ctx context.Context, bucket, key string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal json for s3://%s/%s: %w", bucket, key, err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (b *S3Blob) Delete(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	objects := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(k)}
	}
	_, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: objects},
	})
	if err != nil {
		return fmt.Errorf("delete %d object(s) from s3://%s: %w", len(keys), bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}
