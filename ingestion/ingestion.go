// Package ingestion implements the SP3 Ingestion Handler specified in
// section 4.5 of the design specification: on notification of a newly
// archived SP3 file, parse it, partition per satellite, version-gate by
// product run, and push Orbit records into the Satellite Orbit Store.
package ingestion

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"sort"

	"github.com/geoceiver/cddis-archiver/metrics"
	"github.com/geoceiver/cddis-archiver/orbit"
	"github.com/geoceiver/cddis-archiver/sp3product"
)

// Source is the fixed source identifier for files ingested from this
// archive, matching the "cddis" key named throughout section 4.5-4.7.
const Source = "cddis"

// ArchivePath builds the "/cddis/{week}/{filename}" archive path section 6.2
// expects, for callers (the File Transfer Handler) assembling an SP3File
// after a successful upload to the mirror.
func ArchivePath(week uint, filename string) string {
	return fmt.Sprintf("/cddis/%04d/%s", week, filename)
}

// SP3File is the ingestion request shape from section 3: {source, archive_path}.
type SP3File struct {
	Source      string `json:"source"`
	ArchivePath string `json:"archivePath"`
}

// Fetcher retrieves the raw (gzip-compressed) bytes of an archived object,
// the boundary this package needs onto the mirror object store.
type Fetcher interface {
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
}

// entityStore is the subset of entitystore.Store this package needs to track
// the per-source current product_run_id (section 4.5 step 6).
type entityStore interface {
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, val any) error
}

// orbitStore is the subset of orbit.Store this package fans out to.
type orbitStore interface {
	UpdateOrbit(ctx context.Context, o orbit.Orbit) error
	UpdateSatellites(ctx context.Context, ds orbit.DataSource, satellites []string) error
}

// productRunKey namespaces the per-source "current product_run_id" entity,
// distinct from the orbit-store keys that share the same DataSource.Key()
// prefix (section 4.5 step 6, section 9 "Manifest-updater key collision
// risk" -- the same disambiguation concern applies here).
func productRunKey(ds orbit.DataSource) string {
	return "product_run_" + ds.Key()
}

// Handler implements the SP3 Ingestion Handler from section 4.5. Identity:
// keyed object, typical key "cddis" (per source); callers serialize
// invocations on that key via entity.Dispatcher, matching "Handler is
// serialized per source."
type Handler struct {
	fetcher  Fetcher
	entities entityStore
	orbits   orbitStore
	metrics  *metrics.Metrics
}

// NewHandler creates a Handler wired to the mirror object store, the entity
// state store, and the Satellite Orbit Store. m may be nil when the caller
// doesn't care to collect counters (e.g. tests).
func NewHandler(fetcher Fetcher, entities entityStore, orbits orbitStore, m *metrics.Metrics) *Handler {
	return &Handler{fetcher: fetcher, entities: entities, orbits: orbits, metrics: m}
}

// Process implements process(SP3File) from section 4.5, steps 1-8.
func (h *Handler) Process(ctx context.Context, file SP3File) error {
	week, filename, ok := sp3product.ParsePath(file.ArchivePath)
	if !ok {
		// Parse/path errors for SP3 detection silently skip ingestion
		// without failing the archival (section 4.5, 1.).
		return nil
	}

	fields, ok := sp3product.ParseFilename(filename)
	if !ok {
		return nil
	}

	// Step 2: only accept OPS ultra-rapid SP3 orbit products (section 6.2).
	if !fields.IsOrbitProduct() {
		return nil
	}

	samplingSec, err := sp3product.SamplingSeconds(fields.Sampling)
	if err != nil {
		return fmt.Errorf("failed to parse sampling token for %s: %w", file.ArchivePath, err)
	}

	ds := orbit.DataSource{
		Source:         file.Source,
		AnalysisCenter: fields.AnalysisCenter,
		ProductType:    fields.ProductType,
	}

	// Step 6: monotonic product_run_id gate.
	var currentRunID uint64
	found, err := h.entities.Load(ctx, productRunKey(ds), &currentRunID)
	if err != nil {
		return fmt.Errorf("failed to load current product run for %s: %w", ds.Key(), err)
	}
	if found && currentRunID > fields.ProductRunID {
		// Newer data already loaded; a successful no-op, not an error
		// (section 7: "Ingestion-version skip ... is a successful no-op").
		if h.metrics != nil {
			h.metrics.RecordIngestionSkipped()
		}
		return nil
	}

	// Step 3: fetch and decompress the archive object.
	objKey := fmt.Sprintf("cddis/%s/%s", week, filename)
	raw, ok, err := h.fetcher.Get(ctx, objKey)
	if err != nil {
		return fmt.Errorf("failed to fetch SP3 object %s: %w", objKey, err)
	}
	if !ok {
		return fmt.Errorf("SP3 object %s not found in mirror", objKey)
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to open gzip body for %s: %w", objKey, err)
	}
	defer func() { _ = gz.Close() }()

	records, satellites, err := sp3product.Parse(gz)
	if err != nil {
		return fmt.Errorf("failed to parse SP3 body %s: %w", objKey, err)
	}
	logConstellationCounts(ds, objKey, records)

	if err := h.entities.Save(ctx, productRunKey(ds), fields.ProductRunID); err != nil {
		return fmt.Errorf("failed to save current product run for %s: %w", ds.Key(), err)
	}

	// Step 7: build and push a per-satellite Orbit.
	for _, sat := range satellites {
		o, ok := buildOrbit(ds, fields.ProductRunID, samplingSec, sat, records)
		if !ok {
			continue
		}
		if err := h.orbits.UpdateOrbit(ctx, o); err != nil {
			return fmt.Errorf("failed to update orbit for %s: %w", o.SVSource.Key(), err)
		}
		if h.metrics != nil {
			h.metrics.RecordOrbitUpdated()
		}
	}

	// Step 8: let consumers enumerate the satellites for this source.
	if err := h.orbits.UpdateSatellites(ctx, ds, satellites); err != nil {
		return fmt.Errorf("failed to update satellite list for %s: %w", ds.Key(), err)
	}

	return nil
}

// logConstellationCounts reports a per-constellation record tally for objKey,
// grouped by Record.ConstellationPrefix. This is the "per-constellation
// logging/metrics" consumer described in section 4.5's expansion: the field
// is derived at parse time but never persisted on Orbit, so a log line is
// the only place it is observed.
func logConstellationCounts(ds orbit.DataSource, objKey string, records []sp3product.Record) {
	counts := make(map[byte]int)
	for _, rec := range records {
		counts[rec.ConstellationPrefix]++
	}

	prefixes := make([]byte, 0, len(counts))
	for prefix := range counts {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i] < prefixes[j] })

	for _, prefix := range prefixes {
		fmt.Printf("ingestion: %s %s: %d records for constellation %c\n", ds.Key(), objKey, counts[prefix], prefix)
	}
}

// buildOrbit filters records to one satellite and builds the Orbit that
// satellite's trajectory for this product run, per section 4.5 step 7.
func buildOrbit(ds orbit.DataSource, runID uint64, samplingSec int64, sat string, records []sp3product.Record) (orbit.Orbit, bool) {
	var epochs []float64
	var positions [][3]float64
	for _, rec := range records {
		if rec.Satellite != sat {
			continue
		}
		epochs = append(epochs, rec.GPSTSeconds)
		positions = append(positions, rec.PosECEFKm)
	}
	if len(epochs) == 0 {
		return orbit.Orbit{}, false
	}

	return orbit.Orbit{
		SVSource: orbit.SVSource{
			Satellite:  sat,
			DataSource: ds,
		},
		ProductRunID:          runID,
		SamplingResolutionSec: samplingSec,
		ValidFrom:             epochs[0],
		ValidTo:               epochs[len(epochs)-1],
		Epochs:                epochs,
		PosECEFKm:             positions,
	}, true
}
