// Package metrics implements the process-level counters a long-running
// archiver reports, in the spirit of the teacher's restore-operation
// metrics: atomic counters collected during the run plus a JSON-serializable
// summary report. The spec's Non-goals (section 1) exclude a metrics
// *export* pipeline, but ambient observability survives that exclusion, so
// this package is wired into the File Transfer Handler and the SP3 Ingestion
// Handler as an optional recorder.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Metrics collects counters for one process run, using atomic operations for
// thread-safe updates from the concurrently-dispatched keyed entities.
type Metrics struct {
	filesFetched     int64
	bytesMirrored    int64
	fileErrors       int64
	orbitsUpdated    int64
	ingestionSkipped int64

	startTime time.Time
}

// New creates a new Metrics instance with the start time set to now.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordFileFetched increments the fetched-files counter and adds size to
// the mirrored-bytes counter, called from queue.Handler.ArchiveFile on a
// successful mirror PUT.
func (m *Metrics) RecordFileFetched(size int64) {
	atomic.AddInt64(&m.filesFetched, 1)
	atomic.AddInt64(&m.bytesMirrored, size)
}

// RecordFileError increments the file-error counter, called from
// queue.Handler.ArchiveFile whenever a FileErrorRecord is appended.
func (m *Metrics) RecordFileError() {
	atomic.AddInt64(&m.fileErrors, 1)
}

// RecordOrbitUpdated increments the orbit-update counter, called from
// ingestion.Handler.Process once per satellite successfully pushed to the
// Satellite Orbit Store.
func (m *Metrics) RecordOrbitUpdated() {
	atomic.AddInt64(&m.orbitsUpdated, 1)
}

// RecordIngestionSkipped increments the ingestion-skip counter, called from
// ingestion.Handler.Process on the monotonic product_run_id no-op path.
func (m *Metrics) RecordIngestionSkipped() {
	atomic.AddInt64(&m.ingestionSkipped, 1)
}

// Report is the final metrics snapshot, JSON-serializable for the runtime
// registration surface's status output.
type Report struct {
	StartTime        time.Time     `json:"startTime"`
	EndTime          time.Time     `json:"endTime"`
	FilesFetched     int64         `json:"filesFetched"`
	BytesMirrored    int64         `json:"bytesMirrored"`
	FileErrors       int64         `json:"fileErrors"`
	OrbitsUpdated    int64         `json:"orbitsUpdated"`
	IngestionSkipped int64         `json:"ingestionSkipped"`
	Duration         time.Duration `json:"duration"`
}

// Snapshot produces a Report reflecting the counters at the time of the
// call.
func (m *Metrics) Snapshot() Report {
	endTime := time.Now()
	return Report{
		StartTime:        m.startTime,
		EndTime:          endTime,
		FilesFetched:     atomic.LoadInt64(&m.filesFetched),
		BytesMirrored:    atomic.LoadInt64(&m.bytesMirrored),
		FileErrors:       atomic.LoadInt64(&m.fileErrors),
		OrbitsUpdated:    atomic.LoadInt64(&m.orbitsUpdated),
		IngestionSkipped: atomic.LoadInt64(&m.ingestionSkipped),
		Duration:         endTime.Sub(m.startTime),
	}
}

// MarshalJSON implements json.Marshaler, formatting Duration as a string for
// readability in the runtime registration surface's JSON output.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String returns a human-readable summary for console output.
func (r Report) String() string {
	return fmt.Sprintf(
		"archived %d files (%d bytes) in %s, %d file errors, %d orbit updates, %d ingestion skips",
		r.FilesFetched, r.BytesMirrored, r.Duration, r.FileErrors, r.OrbitsUpdated, r.IngestionSkipped,
	)
}
