package entitystore

import (
	"context"
	"testing"

	"github.com/geoceiver/cddis-archiver/internal/s3mock"
)

type sampleStatus struct {
	RequestID string `json:"requestId"`
	Count     int    `json:"count"`
}

func TestMemoryStoreSaveThenLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	want := sampleStatus{RequestID: "req1", Count: 3}

	if err := s.Save(ctx, "campaign_req1", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var got sampleStatus
	found, err := s.Load(ctx, "campaign_req1", &got)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestMemoryStoreLoadMissingKey(t *testing.T) {
	s := NewMemoryStore()
	var got sampleStatus
	found, err := s.Load(context.Background(), "missing", &got)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Error("Load() found = true, want false for a never-saved key")
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Save(ctx, "k", sampleStatus{Count: 1})
	_ = s.Save(ctx, "k", sampleStatus{Count: 2})

	var got sampleStatus
	if _, err := s.Load(ctx, "k", &got); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Count != 2 {
		t.Errorf("Count = %d, want 2 (overwritten)", got.Count)
	}
}

func TestS3StoreSaveThenLoad(t *testing.T) {
	client := s3mock.New()
	s := NewS3Store(client, "my-bucket", "state")
	ctx := context.Background()
	want := sampleStatus{RequestID: "req2", Count: 7}

	if err := s.Save(ctx, "campaign_req2", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var got sampleStatus
	found, err := s.Load(ctx, "campaign_req2", &got)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestS3StoreLoadMissingKeyReturnsNotFound(t *testing.T) {
	client := s3mock.New()
	s := NewS3Store(client, "my-bucket", "state")

	var got sampleStatus
	found, err := s.Load(context.Background(), "never-saved", &got)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for a missing key", err)
	}
	if found {
		t.Error("Load() found = true, want false")
	}
}

func TestS3StoreNamespacesKeysUnderPrefix(t *testing.T) {
	client := s3mock.New()
	s := NewS3Store(client, "my-bucket", "state")
	if err := s.Save(context.Background(), "abc", sampleStatus{Count: 1}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, ok := client.Files["my-bucket/state/abc.json"]; !ok {
		t.Errorf("expected object at my-bucket/state/abc.json, got keys %v", client.Files)
	}
}
