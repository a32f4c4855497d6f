// Package s3mock provides an in-memory awsclient.S3Client for tests across
// the mirror/manifest/objectstore packages.
package s3mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Client is a mock implementation of awsclient.S3Client backed by maps.
type Client struct {
	Files    map[string][]byte
	Metadata map[string]map[string]string
	ETags    map[string]*string
}

// New creates an empty mock client.
func New() *Client {
	return &Client{
		Files:    make(map[string][]byte),
		Metadata: make(map[string]map[string]string),
		ETags:    make(map[string]*string),
	}
}

func key(bucket, k string) string {
	return fmt.Sprintf("%s/%s", bucket, k)
}

// Put seeds the mock store with an object, bypassing PutObject.
func (c *Client) Put(bucket, k string, content []byte) {
	bk := key(bucket, k)
	c.Files[bk] = content
	etag := fmt.Sprintf("%q", fmt.Sprintf("%x", len(content)))
	c.ETags[bk] = aws.String(etag)
}

func (c *Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	bk := key(*params.Bucket, *params.Key)
	content, ok := c.Files[bk]
	if !ok {
		for k, v := range c.Files {
			if strings.HasSuffix(k, *params.Key) {
				content, ok = v, true
				bk = k
				break
			}
		}
		if !ok {
			return nil, &types.NoSuchKey{Message: aws.String("the specified key does not exist: " + *params.Key)}
		}
	}
	contentLength := int64(len(content))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		Metadata:      c.Metadata[bk],
		ETag:          c.ETags[bk],
		ContentLength: &contentLength,
	}, nil
}

func (c *Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	bk := key(*params.Bucket, *params.Key)
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	c.Files[bk] = data
	if params.Metadata != nil {
		c.Metadata[bk] = params.Metadata
	} else {
		c.Metadata[bk] = make(map[string]string)
	}
	etag := fmt.Sprintf("%q", fmt.Sprintf("%x", len(data)))
	c.ETags[bk] = aws.String(etag)
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (c *Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	bk := key(*params.Bucket, *params.Key)
	content, ok := c.Files[bk]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("the specified key does not exist: " + *params.Key)}
	}
	contentLength := int64(len(content))
	return &s3.HeadObjectOutput{
		ETag:          c.ETags[bk],
		Metadata:      c.Metadata[bk],
		ContentLength: &contentLength,
	}, nil
}
