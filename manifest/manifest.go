// Package manifest implements the Manifest Store as specified in section 4.4
// of the design specification. It handles reading and writing the per-week
// `{filename -> hash}` index that tracks what has been archived into the
// mirror object store.
//
// The ordered-pairs wire format (section 6.3) mirrors
// cddis-archiver/src/archiver.rs's DirectoryListing, which uses
// `#[serde_as(as = "Vec<(_, _)>")]` to preserve ordering across languages that
// don't guarantee map order; here that is expressed as a MarshalJSON/
// UnmarshalJSON pair producing `[][2]string`.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"

	"github.com/geoceiver/cddis-archiver/awsclient"
)

// ErrManifestLoad is returned when a manifest cannot be loaded for any reason
// other than the object being absent (section 4.4).
var ErrManifestLoad = errors.New("manifest load failed")

// ErrManifestStore is returned when a manifest cannot be written (section 4.4).
var ErrManifestStore = errors.New("manifest store failed")

// ManifestEntry is one filename/hash pair as defined in section 3.
// Hash is the lowercase hex SHA-512 digest.
type ManifestEntry struct {
	Filename string
	Hash     string
}

// Manifest is the per-week filename -> hash index defined in section 3.
// Entries are kept ordered by filename for stable serialization; a filename
// appears at most once.
type Manifest struct {
	Week  uint
	files map[string]string
}

// New creates an empty Manifest for the given week.
func New(week uint) *Manifest {
	return &Manifest{Week: week, files: make(map[string]string)}
}

// Get returns the hash stored for filename, if any.
func (m *Manifest) Get(filename string) (string, bool) {
	h, ok := m.files[filename]
	return h, ok
}

// Put inserts or replaces the entry for filename. Re-putting the same
// (filename, hash) pair is idempotent and never creates a duplicate entry,
// satisfying invariant 1 in section 8.
func (m *Manifest) Put(filename, hash string) {
	if m.files == nil {
		m.files = make(map[string]string)
	}
	m.files[filename] = hash
}

// Entries returns all entries ordered by filename, as required by section 3
// ("Ordered by filename for stable serialization").
func (m *Manifest) Entries() []ManifestEntry {
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]ManifestEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, ManifestEntry{Filename: name, Hash: m.files[name]})
	}
	return entries
}

// Len returns the number of entries in the manifest.
func (m *Manifest) Len() int {
	return len(m.files)
}

// wireManifest is the JSON-on-the-wire shape from section 6.3:
//
//	{"week": 2356, "files": [["name.sp3.gz", "abc..."], ...]}
//
// Week is a pointer so Store.GetManifest can distinguish "field present and
// zero" from "field absent" (the legacy-manifest backfill case in section 4.4).
type wireManifest struct {
	Week  *uint      `json:"week"`
	Files [][2]string `json:"files"`
}

// MarshalJSON implements the ordered-pairs wire format from section 6.3.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	entries := m.Entries()
	pairs := make([][2]string, len(entries))
	for i, e := range entries {
		pairs[i] = [2]string{e.Filename, e.Hash}
	}
	week := m.Week
	return json.Marshal(wireManifest{Week: &week, Files: pairs})
}

// UnmarshalJSON implements the ordered-pairs wire format from section 6.3.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Week != nil {
		m.Week = *w.Week
	}
	m.files = make(map[string]string, len(w.Files))
	for _, pair := range w.Files {
		m.files[pair[0]] = pair[1]
	}
	return nil
}

// DiffKind is the outcome of comparing a remote entry against the mirror
// manifest, as defined in section 3 ("FileDiff outcome").
type DiffKind int

const (
	// Found means the filename is present with a matching hash; skip.
	Found DiffKind = iota
	// NotFound means the filename is new.
	NotFound
	// HashChanged means the filename is present with a different hash; mutate.
	HashChanged
)

// Diff compares a remote entry against the mirror manifest, implementing the
// FileDiff outcome from section 3.
func Diff(entry ManifestEntry, mirror *Manifest) DiffKind {
	hash, ok := mirror.Get(entry.Filename)
	if !ok {
		return NotFound
	}
	if hash != entry.Hash {
		return HashChanged
	}
	return Found
}

// Store defines the contract for loading and writing the mirror manifest, as
// specified in section 4.4.
type Store interface {
	GetManifest(ctx context.Context, week uint) (*Manifest, error)
	PutManifest(ctx context.Context, week uint, m *Manifest) error
}

// S3Store implements Store against an S3-compatible mirror object store.
// Example:
//
//	store := manifest.NewS3Store(client, bucket)
//	m, err := store.GetManifest(ctx, 2356)
type S3Store struct {
	client awsclient.S3Client
	bucket string
}

// NewS3Store creates a new S3Store instance.
func NewS3Store(client awsclient.S3Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func objectKey(week uint) string {
	return fmt.Sprintf("cddis/%d/sha512.json", week)
}

// GetManifest implements get_manifest(week) from section 4.4: GET
// /cddis/{week}/sha512.json; if absent, return an empty Manifest; if present
// but missing the week field (legacy), fill it in and write back.
func (s *S3Store) GetManifest(ctx context.Context, week uint) (*Manifest, error) {
	key := objectKey(week)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return New(week), nil
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return New(week), nil
		}
		return nil, fmt.Errorf("%w: week %d: %v", ErrManifestLoad, week, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var w wireManifest
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: week %d: %v", ErrManifestLoad, week, err)
	}

	m := New(week)
	m.files = make(map[string]string, len(w.Files))
	for _, pair := range w.Files {
		m.files[pair[0]] = pair[1]
	}

	if w.Week == nil {
		// Legacy manifest missing the week field: fill it in and write back.
		if err := s.PutManifest(ctx, week, m); err != nil {
			return nil, fmt.Errorf("%w: backfilling week on legacy manifest %d: %v", ErrManifestStore, week, err)
		}
	}

	return m, nil
}

// PutManifest implements put_manifest(week, Manifest) from section 4.4.
func (s *S3Store) PutManifest(ctx context.Context, week uint, m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: week %d: %v", ErrManifestStore, week, err)
	}

	key := objectKey(week)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("%w: week %d: %v", ErrManifestStore, week, err)
	}
	return nil
}

// Compile-time interface checks to ensure implementations satisfy interfaces.
var _ Store = (*S3Store)(nil)
