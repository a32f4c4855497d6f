package orbit

import (
	"context"
	"math"
	"testing"

	"github.com/geoceiver/cddis-archiver/entitystore"
)

// linearOrbit builds an Orbit long enough that a query epoch deep in its
// middle has a full order-17 window (9 samples strictly before and after)
// on both sides, matching the sizing of the real multi-hundred-point SP3
// files the original implementation's own test suite queries against
// (_examples/original_source/tests/orbits.rs) rather than a fixture sized
// to the window itself.
func linearOrbit() Orbit {
	ds := DataSource{Source: "cddis", AnalysisCenter: "COD", ProductType: "ULT"}
	sv := SVSource{Satellite: "G13", DataSource: ds}

	var epochs []float64
	var pos [][3]float64
	for t := 0.0; t <= 9000.0; t += 300.0 {
		epochs = append(epochs, t)
		pos = append(pos, [3]float64{t, 2 * t, 3 * t})
	}

	return Orbit{
		SVSource:              sv,
		ProductRunID:          1,
		SamplingResolutionSec: 300,
		ValidFrom:             epochs[0],
		ValidTo:               epochs[len(epochs)-1],
		Epochs:                epochs,
		PosECEFKm:             pos,
	}
}

func TestInterpolateExactHitReturnsUnmodifiedWindow(t *testing.T) {
	o := linearOrbit()

	result, err := Interpolate(o, 3000.0) // i=10, 9 samples padded on each side
	if err != nil {
		t.Fatalf("Interpolate() error = %v", err)
	}

	half := (Order + 1) / 2
	if len(result.Epochs) != 2*half {
		t.Fatalf("got window length %d, want %d (no interpolation expected)", len(result.Epochs), 2*half)
	}
	for idx, e := range result.Epochs {
		want := [3]float64{e, 2 * e, 3 * e}
		if result.PosECEFKm[idx] != want {
			t.Errorf("PosECEFKm[%d] = %v, want %v", idx, result.PosECEFKm[idx], want)
		}
	}
}

func TestInterpolateMidpointLinearReproducesExactly(t *testing.T) {
	o := linearOrbit()

	result, err := Interpolate(o, 3150.0) // midpoint between samples at i=10 and i=11
	if err != nil {
		t.Fatalf("Interpolate() error = %v", err)
	}

	found := false
	for idx, e := range result.Epochs {
		if math.Abs(e-3150.0) < 1e-9 {
			found = true
			want := [3]float64{3150, 6300, 9450}
			got := result.PosECEFKm[idx]
			for c := 0; c < 3; c++ {
				if math.Abs(got[c]-want[c]) > 1e-6 {
					t.Errorf("PosECEFKm[%d][%d] = %v, want %v", idx, c, got[c], want[c])
				}
			}
		}
	}
	if !found {
		t.Fatalf("interpolated epoch 3150 not found in result window %v", result.Epochs)
	}
	// One extra sample was inserted relative to the no-interpolation window.
	half := (Order + 1) / 2
	if len(result.Epochs) != 2*half+1 {
		t.Errorf("got window length %d, want %d", len(result.Epochs), 2*half+1)
	}
}

func TestInterpolateOutOfRange(t *testing.T) {
	o := linearOrbit()

	if _, err := Interpolate(o, -10000.0); err != ErrOutOfRange {
		t.Errorf("Interpolate(out of range before) error = %v, want ErrOutOfRange", err)
	}
	if _, err := Interpolate(o, 1e9); err != ErrOutOfRange {
		t.Errorf("Interpolate(out of range after) error = %v, want ErrOutOfRange", err)
	}
}

func TestStoreUpdateOrbitNotifiesRegistry(t *testing.T) {
	var notified []DataSource
	reg := registryStub(func(ds DataSource) { notified = append(notified, ds) })

	store := NewStore(entitystore.NewMemoryStore(), reg)
	o := linearOrbit()

	if err := store.UpdateOrbit(context.Background(), o); err != nil {
		t.Fatalf("UpdateOrbit() error = %v", err)
	}
	if len(notified) != 1 || notified[0].Key() != o.SVSource.DataSource.Key() {
		t.Errorf("registry notified with %+v, want one call for %s", notified, o.SVSource.DataSource.Key())
	}
}

func TestStoreGetOrbitPositionMissing(t *testing.T) {
	store := NewStore(entitystore.NewMemoryStore(), nil)
	_, err := store.GetOrbitPosition(context.Background(), "cddis_cod_ult_g99", 0)
	if err != ErrMissingOrbit {
		t.Errorf("GetOrbitPosition() error = %v, want ErrMissingOrbit", err)
	}
}

func TestStoreLatestUpdateWins(t *testing.T) {
	store := NewStore(entitystore.NewMemoryStore(), nil)
	ctx := context.Background()

	first := linearOrbit()
	first.ProductRunID = 1
	if err := store.UpdateOrbit(ctx, first); err != nil {
		t.Fatalf("UpdateOrbit(first) error = %v", err)
	}

	second := linearOrbit()
	second.ProductRunID = 2
	second.Epochs = append([]float64(nil), first.Epochs...)
	second.PosECEFKm = make([][3]float64, len(first.PosECEFKm))
	for i, p := range first.PosECEFKm {
		second.PosECEFKm[i] = [3]float64{p[0] + 1, p[1] + 1, p[2] + 1}
	}
	if err := store.UpdateOrbit(ctx, second); err != nil {
		t.Fatalf("UpdateOrbit(second) error = %v", err)
	}

	got, err := store.GetOrbit(ctx, second.SVSource.Key())
	if err != nil {
		t.Fatalf("GetOrbit() error = %v", err)
	}
	if got.ProductRunID != 2 {
		t.Errorf("ProductRunID = %d, want 2 (most recent write)", got.ProductRunID)
	}
}

type registryStub func(DataSource)

func (f registryStub) UpdateSource(ctx context.Context, ds DataSource) error {
	f(ds)
	return nil
}
