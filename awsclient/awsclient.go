// Package awsclient implements the AWS service abstraction the mirror store is
// built on, as specified in section 6.3 of the design specification. It provides
// the interface and SDK-backed implementation for the S3-compatible object store.
package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client defines the interface for object store operations as required by
// the Manifest Store (section 4.4) and the File Transfer Handler (section 4.3).
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3ClientImpl wraps the AWS SDK S3 client to satisfy S3Client.
type S3ClientImpl struct {
	client *s3.Client
}

// NewS3Client creates a new S3ClientImpl wrapping the given SDK client.
func NewS3Client(client *s3.Client) *S3ClientImpl {
	return &S3ClientImpl{client: client}
}

func (c *S3ClientImpl) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return c.client.GetObject(ctx, params, optFns...)
}

func (c *S3ClientImpl) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return c.client.PutObject(ctx, params, optFns...)
}

func (c *S3ClientImpl) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return c.client.HeadObject(ctx, params, optFns...)
}

// Compile-time interface checks to ensure implementations satisfy interfaces.
var (
	_ S3Client = (*S3ClientImpl)(nil)
	_ S3Client = (*s3.Client)(nil)
)
