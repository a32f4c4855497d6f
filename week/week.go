// Package week implements the Week Workflow specified in section 4.2 of the
// design specification: diff the remote manifest against the mirror
// manifest, chunk the pending files by configured parallelism, and dispatch
// each chunk to a FileQueue shard.
package week

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/geoceiver/cddis-archiver/entity"
	"github.com/geoceiver/cddis-archiver/manifest"
	"github.com/geoceiver/cddis-archiver/queue"
	"github.com/geoceiver/cddis-archiver/remotearchive"
)

// Request is the WeekRequest shape from section 3, derived from a Campaign.
type Request struct {
	RequestID    string `json:"requestID"`
	Week         uint   `json:"week"`
	Parallelism  uint   `json:"parallelism"`
	ProcessFiles bool   `json:"processFiles"`
}

// Key returns the canonical entity key {request_id}_{week}, per section 4.2.
func (r Request) Key() string {
	return fmt.Sprintf("%s_%d", r.RequestID, r.Week)
}

// QueueDescriptor is one chunk of pending files assigned to a FileQueue
// shard, tracked in WeekStatus per section 3.
type QueueDescriptor struct {
	Queue queue.FileQueue `json:"queue"`
	Files int             `json:"files"`
}

// Status is the persisted WeekStatus from section 3.
type Status struct {
	WeekRequest    Request            `json:"weekRequest"`
	OriginalFiles  int                `json:"originalFiles"`
	ArchivedFiles  int                `json:"archivedFiles"`
	NewFiles       int                `json:"newFiles"`
	ChangedFiles   int                `json:"changedFiles"`
	Queues         []QueueDescriptor  `json:"queues"`
	TimeStarted    time.Time          `json:"timeStarted"`
	TimeCompleted  *time.Time         `json:"timeCompleted,omitempty"`
	LastUpdate     *time.Time         `json:"lastUpdate,omitempty"`
}

// ErrStatusNotFound is returned by GetStatus when no status has ever been
// persisted for a week key (section 4.2, section 7: TerminalError class).
var ErrStatusNotFound = entity.NewTerminalError("week status not found")

// entityStore is the subset of entitystore.Store this package needs.
type entityStore interface {
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, val any) error
}

// remoteLister is the subset of remotearchive.Client this package needs.
type remoteLister interface {
	GetListing(week uint) (remotearchive.Listing, error)
}

// fileArchiver is the subset of queue.Handler this package dispatches file
// transfers to, via entity.Dispatcher's Send semantics.
type fileArchiver interface {
	ArchiveFile(ctx context.Context, req queue.FileRequest) error
}

// Workflow implements the Week Workflow from section 4.2.
type Workflow struct {
	entities   entityStore
	remote     remoteLister
	manifests  manifest.Store
	archiver   fileArchiver
	dispatcher *entity.Dispatcher
	bucket     string
}

// NewWorkflow creates a Workflow wired to its collaborators. It takes no
// bucket: FileRequest mirror_path values are bucket-relative keys of the form
// cddis/{week}/{filename} (section 6.3).
func NewWorkflow(entities entityStore, remote remoteLister, manifests manifest.Store, archiver fileArchiver, dispatcher *entity.Dispatcher) *Workflow {
	return &Workflow{entities: entities, remote: remote, manifests: manifests, archiver: archiver, dispatcher: dispatcher}
}

// Run implements run(WeekRequest) from section 4.2, steps 1-6.
func (w *Workflow) Run(ctx context.Context, req Request) error {
	if req.Parallelism == 0 {
		req.Parallelism = 1
	}

	status := Status{WeekRequest: req, TimeStarted: time.Now()}

	listing, err := w.remote.GetListing(req.Week)
	if err != nil {
		return fmt.Errorf("failed to fetch remote listing for week %d: %w", req.Week, err)
	}
	mirror, err := w.manifests.GetManifest(ctx, req.Week)
	if err != nil {
		return fmt.Errorf("failed to fetch mirror manifest for week %d: %w", req.Week, err)
	}

	status.OriginalFiles = len(listing.Files)
	status.ArchivedFiles = mirror.Len()

	pending := diffPending(listing, mirror, &status)

	if err := w.saveStatus(ctx, status); err != nil {
		return err
	}

	if len(pending) == 0 {
		return w.completeStatus(ctx, status)
	}

	chunks := chunk(pending, int(req.Parallelism))
	for i, files := range chunks {
		q := queue.FileQueue{RequestID: req.RequestID, QueueNum: uint(i + 1)}
		status.Queues = append(status.Queues, QueueDescriptor{Queue: q, Files: len(files)})
		if err := w.saveStatus(ctx, status); err != nil {
			return err
		}

		for _, entry := range files {
			fr := queue.FileRequest{
				Queue:        q,
				Week:         req.Week,
				RemotePath:   fmt.Sprintf("%s/%d/%s", remotearchive.BaseURL, req.Week, entry.Filename),
				Hash:         entry.Hash,
				MirrorPath:   fmt.Sprintf("cddis/%d/%s", req.Week, entry.Filename),
				ProcessFiles: req.ProcessFiles,
			}
			w.dispatcher.Send(ctx, q.Key(), func(ctx context.Context) error {
				return w.archiver.ArchiveFile(ctx, fr)
			})
		}
	}

	return w.completeStatus(ctx, status)
}

// diffPending computes the pending set from section 4.2 step 3: entries in
// listing whose Diff against mirror is NotFound or HashChanged, counting
// new_files and changed_files. Files are returned, and sent to their shard,
// in filename order; the dispatcher runs a shard's files one at a time but
// does not guarantee that they run in the order they were sent.
func diffPending(listing remotearchive.Listing, mirror *manifest.Manifest, status *Status) []manifest.ManifestEntry {
	names := append([]string(nil), listing.Order...)
	sort.Strings(names)

	var pending []manifest.ManifestEntry
	for _, name := range names {
		entry := manifest.ManifestEntry{Filename: name, Hash: listing.Files[name]}
		switch manifest.Diff(entry, mirror) {
		case manifest.NotFound:
			status.NewFiles++
			pending = append(pending, entry)
		case manifest.HashChanged:
			status.ChangedFiles++
			pending = append(pending, entry)
		}
	}
	return pending
}

// chunk partitions pending into at most parallelism contiguous chunks of
// size max(1, len(pending)/parallelism), with the last chunk absorbing the
// remainder, per section 4.2 step 5 and section 9's resolved open question.
func chunk(pending []manifest.ManifestEntry, parallelism int) [][]manifest.ManifestEntry {
	if parallelism < 1 {
		parallelism = 1
	}
	size := len(pending) / parallelism
	if size < 1 {
		size = 1
	}

	var chunks [][]manifest.ManifestEntry
	for i := 0; i < len(pending); i += size {
		end := i + size
		if end > len(pending) {
			end = len(pending)
		}
		// Last chunk absorbs any remainder past the configured count.
		if len(chunks) == parallelism-1 {
			end = len(pending)
		}
		chunks = append(chunks, pending[i:end])
		if end == len(pending) {
			break
		}
	}
	return chunks
}

// GetStatus implements get_status() from section 4.2.
func (w *Workflow) GetStatus(ctx context.Context, req Request) (Status, error) {
	var status Status
	found, err := w.entities.Load(ctx, req.Key(), &status)
	if err != nil {
		return Status{}, fmt.Errorf("failed to load week status for %s: %w", req.Key(), err)
	}
	if !found {
		return Status{}, ErrStatusNotFound
	}
	return status, nil
}

func (w *Workflow) saveStatus(ctx context.Context, status Status) error {
	now := time.Now()
	status.LastUpdate = &now
	if err := w.entities.Save(ctx, status.WeekRequest.Key(), status); err != nil {
		return fmt.Errorf("failed to save week status for %s: %w", status.WeekRequest.Key(), err)
	}
	return nil
}

func (w *Workflow) completeStatus(ctx context.Context, status Status) error {
	now := time.Now()
	status.TimeCompleted = &now
	return w.saveStatus(ctx, status)
}
