package week

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/geoceiver/cddis-archiver/entity"
	"github.com/geoceiver/cddis-archiver/entitystore"
	"github.com/geoceiver/cddis-archiver/manifest"
	"github.com/geoceiver/cddis-archiver/queue"
	"github.com/geoceiver/cddis-archiver/remotearchive"
)

type fakeLister struct {
	listing remotearchive.Listing
}

func (f *fakeLister) GetListing(w uint) (remotearchive.Listing, error) {
	return f.listing, nil
}

type fakeManifestStore struct {
	mu sync.Mutex
	m  map[uint]*manifest.Manifest
}

func newFakeManifestStore() *fakeManifestStore {
	return &fakeManifestStore{m: make(map[uint]*manifest.Manifest)}
}

func (f *fakeManifestStore) GetManifest(ctx context.Context, w uint) (*manifest.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.m[w]; ok {
		return m, nil
	}
	return manifest.New(w), nil
}

func (f *fakeManifestStore) PutManifest(ctx context.Context, w uint, m *manifest.Manifest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[w] = m
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []queue.FileRequest
}

func (f *fakeArchiver) ArchiveFile(ctx context.Context, req queue.FileRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, req)
	return nil
}

func listingOf(files ...string) remotearchive.Listing {
	l := remotearchive.Listing{Files: make(map[string]string)}
	for i, name := range files {
		hash := fmt.Sprintf("hash%d", i)
		l.Files[name] = hash
		l.Order = append(l.Order, name)
	}
	return l
}

func TestRunDispatchesPendingFiles(t *testing.T) {
	lister := &fakeLister{listing: listingOf("a.sp3.gz", "b.sp3.gz", "c.sp3.gz")}
	manifests := newFakeManifestStore()
	archiver := &fakeArchiver{}
	entities := entitystore.NewMemoryStore()
	dispatcher := entity.NewDispatcher()

	w := NewWorkflow(entities, lister, manifests, archiver, dispatcher)

	req := Request{RequestID: "reqA", Week: 2356, Parallelism: 2}
	if err := w.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	dispatcher.Wait()

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.archived) != 3 {
		t.Fatalf("got %d archived files, want 3", len(archiver.archived))
	}

	status, err := w.GetStatus(context.Background(), req)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.NewFiles != 3 {
		t.Errorf("NewFiles = %d, want 3", status.NewFiles)
	}
	if len(status.Queues) != 2 {
		t.Fatalf("got %d queues, want 2 (parallelism)", len(status.Queues))
	}
	if status.TimeCompleted == nil {
		t.Error("expected TimeCompleted to be set")
	}
}

func TestRunNoPendingFilesCompletesImmediately(t *testing.T) {
	lister := &fakeLister{listing: listingOf("a.sp3.gz")}
	manifests := newFakeManifestStore()
	manifests.m[2356] = func() *manifest.Manifest {
		m := manifest.New(2356)
		m.Put("a.sp3.gz", "hash0")
		return m
	}()
	archiver := &fakeArchiver{}
	entities := entitystore.NewMemoryStore()
	dispatcher := entity.NewDispatcher()

	w := NewWorkflow(entities, lister, manifests, archiver, dispatcher)

	req := Request{RequestID: "reqB", Week: 2356, Parallelism: 2}
	if err := w.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.archived) != 0 {
		t.Errorf("expected no archived files when nothing is pending, got %d", len(archiver.archived))
	}
}

func TestChunkSizing(t *testing.T) {
	entries := make([]manifest.ManifestEntry, 3)
	for i := range entries {
		entries[i] = manifest.ManifestEntry{Filename: fmt.Sprintf("f%d", i)}
	}
	chunks := chunk(entries, 2)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != 1 || len(chunks[1]) != 2 {
		t.Errorf("chunk sizes = [%d %d], want [1 2]", len(chunks[0]), len(chunks[1]))
	}
}

func TestChunkSingleParallelism(t *testing.T) {
	entries := make([]manifest.ManifestEntry, 5)
	chunks := chunk(entries, 1)
	if len(chunks) != 1 || len(chunks[0]) != 5 {
		t.Errorf("got %v, want one chunk of 5", chunks)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	w := NewWorkflow(entitystore.NewMemoryStore(), &fakeLister{}, newFakeManifestStore(), &fakeArchiver{}, entity.NewDispatcher())
	_, err := w.GetStatus(context.Background(), Request{RequestID: "missing", Week: 1})
	if err != ErrStatusNotFound {
		t.Errorf("GetStatus() error = %v, want ErrStatusNotFound", err)
	}
}
