// Package queue implements the File Transfer Handler (FileQueue) specified
// in section 4.3 of the design specification: fetch one remote file, store
// it to the mirror path, optionally trigger SP3 ingestion, and request a
// manifest update. The same Handler type also serves
// update_archive_manifest, the per-week manifest serializer described in the
// same section.
package queue

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/geoceiver/cddis-archiver/entity"
	"github.com/geoceiver/cddis-archiver/ingestion"
	"github.com/geoceiver/cddis-archiver/manifest"
	"github.com/geoceiver/cddis-archiver/metrics"
	"github.com/geoceiver/cddis-archiver/remotearchive"
	"github.com/geoceiver/cddis-archiver/sp3product"
)

// MaxFileSize is MAX_FILE_SIZE from section 6.5.
const MaxFileSize = 100_000_000

// FileQueue identifies one queue shard, key
// cddis_queue_{request_id}_{queue_num}, per section 3.
type FileQueue struct {
	RequestID string `json:"requestID"`
	QueueNum  uint   `json:"queueNum"`
}

// Key returns the canonical per-shard entity key.
func (q FileQueue) Key() string {
	return fmt.Sprintf("cddis_queue_%s_%d", q.RequestID, q.QueueNum)
}

// ManifestKey returns the per-week manifest-serializer key, deliberately
// distinct from Key()'s cddis_queue_* namespace per section 9's resolved
// open question ("Implementations MUST disambiguate ... separate prefixes
// like manifest_{week}").
func ManifestKey(week uint) string {
	return fmt.Sprintf("manifest_%d", week)
}

// FileRequest is one file transfer task, as defined in section 3.
type FileRequest struct {
	Queue        FileQueue `json:"queue"`
	Week         uint      `json:"week"`
	RemotePath   string    `json:"remotePath"`
	Hash         string    `json:"hash"`
	MirrorPath   string    `json:"mirrorPath"`
	ProcessFiles bool      `json:"processFiles"`
}

// FileErrorKind enumerates the FileError variants from section 3.
type FileErrorKind string

const (
	FileNotFound FileErrorKind = "FileNotFound"
	FileTooLarge FileErrorKind = "FileTooLarge"
	InvalidType  FileErrorKind = "InvalidType"
	HashMismatch FileErrorKind = "HashMismatch"
	UploadError  FileErrorKind = "UploadError"
)

// FileError is one recorded, non-terminal failure for a single file, per
// section 3 and section 7 ("recorded in QueueStatus, not propagated").
type FileError struct {
	Kind     FileErrorKind `json:"kind"`
	Size     int64         `json:"size,omitempty"`     // FileTooLarge
	Received string        `json:"received,omitempty"` // HashMismatch
}

// FileErrorRecord pairs a FileError with the request and remote size that
// produced it, as defined in section 3's QueueStatus.file_errors.
type FileErrorRecord struct {
	Error       FileError   `json:"error"`
	FileRequest FileRequest `json:"fileRequest"`
	RemoteSize  int64       `json:"remoteSize"`
}

// QueueStatus is the persisted per-shard status from section 3.
type QueueStatus struct {
	Queue          FileQueue         `json:"queue"`
	CompletedFiles int               `json:"completedFiles"`
	FileErrors     []FileErrorRecord `json:"fileErrors"`
	TimeStarted    time.Time         `json:"timeStarted"`
	TimeCompleted  *time.Time        `json:"timeCompleted,omitempty"`
	LastUpdate     *time.Time        `json:"lastUpdate,omitempty"`
}

// ErrStatusNotFound is returned by GetStatus when no status has ever been
// persisted for a queue key (section 4.3: "get_status() returns the
// QueueStatus", section 7: TerminalError class).
var ErrStatusNotFound = entity.NewTerminalError("queue status not found")

// remoteClient is the subset of remotearchive.Client this package needs.
type remoteClient interface {
	GetFile(week uint, filename string) (remotearchive.FileResponse, error)
}

// mirrorStore is the subset of objectstore.Store this package needs to PUT
// archived files into the mirror.
type mirrorStore interface {
	Put(ctx context.Context, key string, body []byte) error
}

// entityStore is the subset of entitystore.Store this package needs.
type entityStore interface {
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, val any) error
}

// ingestionTrigger is the subset of ingestion.Handler this package
// fire-and-forgets into, per section 4.3 step 4.
type ingestionTrigger interface {
	Process(ctx context.Context, file ingestion.SP3File) error
}

// Handler implements both archive_file and update_archive_manifest from
// section 4.3, dispatched through entity.Dispatcher on the two distinct key
// shapes described there.
type Handler struct {
	remote     remoteClient
	mirror     mirrorStore
	entities   entityStore
	manifests  manifest.Store
	ingestion  ingestionTrigger
	dispatcher *entity.Dispatcher
	metrics    *metrics.Metrics
}

// NewHandler creates a Handler wired to its collaborators. m may be nil when
// the caller doesn't care to collect counters (e.g. tests).
func NewHandler(remote remoteClient, mirror mirrorStore, entities entityStore, manifests manifest.Store, ing ingestionTrigger, dispatcher *entity.Dispatcher, m *metrics.Metrics) *Handler {
	return &Handler{
		remote:     remote,
		mirror:     mirror,
		entities:   entities,
		manifests:  manifests,
		ingestion:  ing,
		dispatcher: dispatcher,
		metrics:    m,
	}
}

// ArchiveFile implements archive_file(FileRequest) from section 4.3.
func (h *Handler) ArchiveFile(ctx context.Context, req FileRequest) error {
	status, err := h.loadOrInitStatus(ctx, req.Queue)
	if err != nil {
		return err
	}

	resp, err := h.remote.GetFile(req.Week, path.Base(req.RemotePath))
	if err != nil {
		return fmt.Errorf("failed to fetch remote file %s: %w", req.RemotePath, err)
	}

	if resp.ContentLength > MaxFileSize {
		_ = resp.Body.Close()
		status.FileErrors = append(status.FileErrors, FileErrorRecord{
			Error:       FileError{Kind: FileTooLarge, Size: resp.ContentLength},
			FileRequest: req,
			RemoteSize:  resp.ContentLength,
		})
		status.CompletedFiles++
		h.recordFileError()
		return h.saveStatus(ctx, status)
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read remote file %s: %w", req.RemotePath, err)
	}

	if err := h.mirror.Put(ctx, req.MirrorPath, body); err != nil {
		status.FileErrors = append(status.FileErrors, FileErrorRecord{
			Error:       FileError{Kind: UploadError},
			FileRequest: req,
			RemoteSize:  resp.ContentLength,
		})
		status.CompletedFiles++
		h.recordFileError()
		return h.saveStatus(ctx, status)
	}
	if h.metrics != nil {
		h.metrics.RecordFileFetched(int64(len(body)))
	}

	filename := path.Base(req.MirrorPath)
	if req.ProcessFiles && h.ingestion != nil && isSP3OrbitProduct(filename) {
		h.dispatcher.Send(ctx, ingestion.Source, func(ctx context.Context) error {
			return h.ingestion.Process(ctx, ingestion.SP3File{
				Source:      ingestion.Source,
				ArchivePath: ingestion.ArchivePath(req.Week, filename),
			})
		})
	}

	manifestKey := ManifestKey(req.Week)
	h.dispatcher.Send(ctx, manifestKey, func(ctx context.Context) error {
		return h.UpdateArchiveManifest(ctx, req.Week, req)
	})

	status.CompletedFiles++
	return h.saveStatus(ctx, status)
}

// UpdateArchiveManifest implements update_archive_manifest(FileRequest) from
// section 4.3: all successful completions for a given week funnel through
// this one call, serialized on ManifestKey(week), giving the total-order
// read-modify-write guarantee invariant 1 in section 8 requires.
func (h *Handler) UpdateArchiveManifest(ctx context.Context, week uint, req FileRequest) error {
	m, err := h.manifests.GetManifest(ctx, week)
	if err != nil {
		return fmt.Errorf("failed to load manifest for week %d: %w", week, err)
	}
	m.Put(path.Base(req.MirrorPath), req.Hash)
	if err := h.manifests.PutManifest(ctx, week, m); err != nil {
		return fmt.Errorf("failed to write manifest for week %d: %w", week, err)
	}
	return nil
}

// GetStatus implements get_status() from section 4.3.
func (h *Handler) GetStatus(ctx context.Context, q FileQueue) (QueueStatus, error) {
	var status QueueStatus
	found, err := h.entities.Load(ctx, q.Key(), &status)
	if err != nil {
		return QueueStatus{}, fmt.Errorf("failed to load queue status for %s: %w", q.Key(), err)
	}
	if !found {
		return QueueStatus{}, ErrStatusNotFound
	}
	return status, nil
}

func (h *Handler) loadOrInitStatus(ctx context.Context, q FileQueue) (QueueStatus, error) {
	var status QueueStatus
	found, err := h.entities.Load(ctx, q.Key(), &status)
	if err != nil {
		return QueueStatus{}, fmt.Errorf("failed to load queue status for %s: %w", q.Key(), err)
	}
	if !found {
		status = QueueStatus{Queue: q, TimeStarted: time.Now()}
	}
	return status, nil
}

func (h *Handler) saveStatus(ctx context.Context, status QueueStatus) error {
	now := time.Now()
	status.LastUpdate = &now
	if err := h.entities.Save(ctx, status.Queue.Key(), status); err != nil {
		return fmt.Errorf("failed to save queue status for %s: %w", status.Queue.Key(), err)
	}
	return nil
}

func (h *Handler) recordFileError() {
	if h.metrics != nil {
		h.metrics.RecordFileError()
	}
}

// isSP3OrbitProduct reports whether filename marks an SP3 orbit product worth
// ingesting, per section 6.2's strict grammar gate.
func isSP3OrbitProduct(filename string) bool {
	fields, ok := sp3product.ParseFilename(filename)
	return ok && fields.IsOrbitProduct()
}
