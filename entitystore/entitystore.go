// Package entitystore implements the durable state persistence that backs every
// keyed entity described in section 3 ("Ownership/lifecycle") and section 5 of the
// design specification. Where the teacher's checkpoint package persists one fixed
// restore-progress struct under an implicit single key, entitystore persists an
// arbitrary JSON document under an arbitrary string key, since the entities in this
// system (CampaignStatus, WeekStatus, QueueStatus, per-satellite Orbit, per-source
// satellite lists, the Source Registry) each need their own key and their own shape.
package entitystore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"

	"github.com/geoceiver/cddis-archiver/awsclient"
)

// Store defines the contract for loading and saving keyed entity state.
// Example:
//
//	var store entitystore.Store
//	var status campaign.Status
//	found, err := store.Load(ctx, "campaign_"+requestID, &status)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !found {
//	    status = campaign.Status{}
//	}
type Store interface {
	// Load unmarshals the value stored under key into out. found is false
	// (with a nil error) when no value has ever been stored for key.
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, val any) error
}

// S3Store implements Store using an S3-compatible object store, with every
// key namespaced under a fixed prefix (one bucket hosts many entity kinds).
// Example:
//
//	store := entitystore.NewS3Store(client, "my-bucket", "state/")
//	found, err := store.Load(ctx, "campaign_abc123", &status)
type S3Store struct {
	client awsclient.S3Client
	bucket string
	prefix string
}

// NewS3Store creates a new S3Store instance.
func NewS3Store(client awsclient.S3Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) objectKey(key string) string {
	return strings.TrimSuffix(s.prefix, "/") + "/" + key + ".json"
}

// Load implements the entity load requirements from section 3 of the spec.
func (s *S3Store) Load(ctx context.Context, key string, out any) (bool, error) {
	objKey := s.objectKey(key)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return false, nil
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get entity state %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode entity state %s: %w", key, err)
	}
	return true, nil
}

// Save implements the entity save requirements from section 3 of the spec.
func (s *S3Store) Save(ctx context.Context, key string, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode entity state %s: %w", key, err)
	}

	objKey := s.objectKey(key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to save entity state %s: %w", key, err)
	}
	return nil
}

// MemoryStore implements Store in memory. Primarily intended for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Load retrieves and decodes the entity state stored under key.
func (m *MemoryStore) Load(ctx context.Context, key string, out any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode entity state %s: %w", key, err)
	}
	return true, nil
}

// Save encodes and stores the entity state under key.
func (m *MemoryStore) Save(ctx context.Context, key string, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode entity state %s: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = data
	m.mu.Unlock()
	return nil
}

// Compile-time interface checks to ensure implementations satisfy interfaces.
var (
	_ Store = (*S3Store)(nil)
	_ Store = (*MemoryStore)(nil)
)
