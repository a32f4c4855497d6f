// Package orbit implements the Satellite Orbit Store specified in section 4.6
// of the design specification: per-satellite trajectory state and the
// Lagrange-interpolated position query. It also defines the Orbit/SVSource/
// DataSource shapes from section 3.
package orbit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/geoceiver/cddis-archiver/geodetic"
)

// Order is DEFAULT_INTERPOLATION_ORDER from section 6.5: N = 17, odd.
const Order = 17

// ErrMissingOrbit is returned by GetOrbitPosition when no orbit has ever been
// stored for the requested satellite key (section 4.6: "If no stored orbit,
// fail MissingOrbit").
var ErrMissingOrbit = errors.New("missing orbit")

// ErrOutOfRange is returned when the query epoch falls outside the window the
// Lagrange interpolator can center on (section 4.6).
var ErrOutOfRange = errors.New("epoch out of range")

// DataSource identifies a producer of orbit products, as defined in
// section 3: {source, analysis_center, product_type}.
type DataSource struct {
	Source         string `json:"source"`
	AnalysisCenter string `json:"analysisCenter"`
	ProductType    string `json:"productType"`
}

// Key returns the canonical key for this DataSource: {source}_{ac}_{product_type}.
func (d DataSource) Key() string {
	return fmt.Sprintf("%s_%s_%s", d.Source, d.AnalysisCenter, d.ProductType)
}

// SVSource identifies one satellite within a DataSource, as defined in
// section 3.
type SVSource struct {
	Satellite  string     `json:"satellite"`
	DataSource DataSource `json:"dataSource"`
}

// Key returns the canonical key for this SVSource:
// {source}_{ac}_{product_type}_{sat_lower}, per section 3.
func (s SVSource) Key() string {
	return fmt.Sprintf("%s_%s", s.DataSource.Key(), strings.ToLower(s.Satellite))
}

// Orbit is one satellite's trajectory for one product run, as defined in
// section 3. Invariants (enforced by callers that build an Orbit, e.g.
// package ingestion): Epochs monotonically increasing; len(Epochs) ==
// len(PosECEFKm); (ValidTo-ValidFrom) ~= (len(Epochs)-1)*SamplingResolutionSec
// within 1ms.
type Orbit struct {
	SVSource              SVSource     `json:"svSource"`
	ProductRunID          uint64       `json:"productRunID"`
	SamplingResolutionSec int64        `json:"samplingResolutionSec"`
	ValidFrom             float64      `json:"validFrom"`
	ValidTo               float64      `json:"validTo"`
	Epochs                []float64    `json:"epochs"`
	PosECEFKm             [][3]float64 `json:"posEcefKm"`
	PosLatLonAlt          [][3]float64 `json:"posLatLonAlt,omitempty"`
	ClockUsec             []float64    `json:"clockUsec,omitempty"`
}

// entityStore is the subset of entitystore.Store this package needs.
type entityStore interface {
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, val any) error
}

// sourceRegistry is the subset of registry.Store this package needs, to
// notify the Source Registry on every UpdateOrbit (section 4.6: "After
// storing, notify the Source Registry with the contained DataSource").
// Defined in terms of this package's own DataSource so orbit never imports
// registry directly; callers wire a small adapter (cmd) converting between
// the two identically-shaped types.
type sourceRegistry interface {
	UpdateSource(ctx context.Context, ds DataSource) error
}

// Store implements the Satellite Orbit Store from section 4.6. Two key
// shapes coexist in the backing entityStore: the per-satellite key holds one
// Orbit, the per-source key holds the list of known satellites.
type Store struct {
	entities entityStore
	registry sourceRegistry
}

// NewStore creates a Store backed by the given entity state store, notifying
// registry on every UpdateOrbit. registry may be nil in tests that don't care
// about source-registry fan-out.
func NewStore(entities entityStore, reg sourceRegistry) *Store {
	return &Store{entities: entities, registry: reg}
}

// UpdateSatellites implements update_satellites([string]) from section 4.6:
// last write wins, safe because the runtime serializes per key.
func (s *Store) UpdateSatellites(ctx context.Context, ds DataSource, satellites []string) error {
	if err := s.entities.Save(ctx, ds.Key(), satellites); err != nil {
		return fmt.Errorf("failed to save satellite list for %s: %w", ds.Key(), err)
	}
	return nil
}

// GetSatellites returns the list of known satellites for a DataSource.
func (s *Store) GetSatellites(ctx context.Context, ds DataSource) ([]string, error) {
	var sats []string
	found, err := s.entities.Load(ctx, ds.Key(), &sats)
	if err != nil {
		return nil, fmt.Errorf("failed to load satellite list for %s: %w", ds.Key(), err)
	}
	if !found {
		return nil, nil
	}
	return sats, nil
}

// UpdateOrbit implements update_orbit(Orbit) from section 4.6: store the
// orbit, then notify the Source Registry with the contained DataSource.
func (s *Store) UpdateOrbit(ctx context.Context, o Orbit) error {
	key := o.SVSource.Key()
	if err := s.entities.Save(ctx, key, o); err != nil {
		return fmt.Errorf("failed to save orbit %s: %w", key, err)
	}
	if s.registry != nil {
		if err := s.registry.UpdateSource(ctx, o.SVSource.DataSource); err != nil {
			return fmt.Errorf("failed to notify source registry for %s: %w", key, err)
		}
	}
	return nil
}

// GetOrbit returns the raw stored Orbit for svKey without interpolation, for
// callers (the query API façade, section 6.4) that omit the epoch path
// parameter and just want the latest stored trajectory.
func (s *Store) GetOrbit(ctx context.Context, svKey string) (Orbit, error) {
	var stored Orbit
	found, err := s.entities.Load(ctx, svKey, &stored)
	if err != nil {
		return Orbit{}, fmt.Errorf("failed to load orbit %s: %w", svKey, err)
	}
	if !found {
		return Orbit{}, ErrMissingOrbit
	}
	return stored, nil
}

// GetOrbitPosition implements get_orbit_position(epoch) from section 4.6: it
// returns an Orbit whose Epochs/PosECEFKm are the interpolated window, plus
// (if the query epoch doesn't land exactly on a stored sample) the
// interpolated sample inserted at the middle of that window.
func (s *Store) GetOrbitPosition(ctx context.Context, svKey string, epochGPST float64) (Orbit, error) {
	var stored Orbit
	found, err := s.entities.Load(ctx, svKey, &stored)
	if err != nil {
		return Orbit{}, fmt.Errorf("failed to load orbit %s: %w", svKey, err)
	}
	if !found {
		return Orbit{}, ErrMissingOrbit
	}
	return Interpolate(stored, epochGPST)
}

// Interpolate implements the order-17 Lagrange interpolation algorithm from
// section 4.6. It is exported standalone (independent of any Store) so it
// can be exercised directly from tests without building entity state.
func Interpolate(o Orbit, epoch float64) (Orbit, error) {
	if o.SamplingResolutionSec == 0 {
		return Orbit{}, fmt.Errorf("orbit has zero sampling resolution")
	}
	sampling := float64(o.SamplingResolutionSec)
	r := (epoch - o.ValidFrom) / sampling
	i := int(math.Round(r))

	half := (Order + 1) / 2 // half_before = half_after, section 4.6

	if i < half || i+half > len(o.Epochs)-1 {
		return Orbit{}, ErrOutOfRange
	}

	windowEpochs := append([]float64(nil), o.Epochs[i-half:i+half]...)
	windowPos := append([][3]float64(nil), o.PosECEFKm[i-half:i+half]...)

	result := Orbit{
		SVSource:              o.SVSource,
		ProductRunID:          o.ProductRunID,
		SamplingResolutionSec: o.SamplingResolutionSec,
		ValidFrom:             o.ValidFrom,
		ValidTo:               o.ValidTo,
	}

	if isIntegral(r) {
		// Exact hit: return the unmodified window, no interpolation
		// (section 4.6, invariant 5 in section 8).
		result.Epochs = windowEpochs
		result.PosECEFKm = windowPos
	} else {
		p := lagrangeEval(epoch, windowEpochs, windowPos)

		// Insert (epoch, p) between the middle two window samples.
		insertAt := half
		epochs := make([]float64, 0, len(windowEpochs)+1)
		epochs = append(epochs, windowEpochs[:insertAt]...)
		epochs = append(epochs, epoch)
		epochs = append(epochs, windowEpochs[insertAt:]...)

		pos := make([][3]float64, 0, len(windowPos)+1)
		pos = append(pos, windowPos[:insertAt]...)
		pos = append(pos, p)
		pos = append(pos, windowPos[insertAt:]...)

		result.Epochs = epochs
		result.PosECEFKm = pos
	}

	result.PosLatLonAlt = make([][3]float64, len(result.PosECEFKm))
	for idx, pos := range result.PosECEFKm {
		lat, lon, height := geodetic.ECEFToLatLonAlt(pos[0]*1000.0, pos[1]*1000.0, pos[2]*1000.0)
		result.PosLatLonAlt[idx] = [3]float64{lat, lon, height}
	}
	// Clock series is dropped in the result (section 4.6).

	return result, nil
}

// isIntegral reports whether r is within floating-point epsilon of an
// integer, i.e. the query epoch lands exactly on a stored sample.
func isIntegral(r float64) bool {
	return math.Abs(r-math.Round(r)) < 1e-9
}

// lagrangeEval evaluates the order-len(w) Lagrange interpolating polynomial
// through (w[j], pos[j]) at epoch, componentwise over (x,y,z), per section
// 4.6: Lⱼ(epoch) = ∏_{k≠j} (epoch - w[k]) / (w[j] - w[k]); p(epoch) = Σⱼ Lⱼ(epoch)·pos[j].
func lagrangeEval(epoch float64, w []float64, pos [][3]float64) [3]float64 {
	var result [3]float64
	for j := range w {
		num, den := 1.0, 1.0
		for k := range w {
			if k == j {
				continue
			}
			num *= epoch - w[k]
			den *= w[j] - w[k]
		}
		basis := num / den
		for c := 0; c < 3; c++ {
			result[c] += basis * pos[j][c]
		}
	}
	return result
}

// SortedSatellites returns satellites sorted for deterministic API responses
// (section 6.4: GET /orbits/{source_key}/{epoch} returns [Orbit]).
func SortedSatellites(sats []string) []string {
	out := append([]string(nil), sats...)
	sort.Strings(out)
	return out
}
