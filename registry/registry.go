// Package registry implements the Source Registry specified in section 4.7
// of the design specification. It tracks the set of known
// (source, analysis_center, product_type) tuples that have ever produced an
// orbit update.
package registry

import (
	"context"
	"fmt"
)

// entityKey is the single key under which the registry's state lives,
// per section 4.7 ("Keyed object with key orbits").
const entityKey = "orbits"

// DataSource identifies a producer of orbit products, as defined in
// section 3: {source, analysis_center, product_type}.
type DataSource struct {
	Source         string `json:"source"`
	AnalysisCenter string `json:"analysisCenter"`
	ProductType    string `json:"productType"`
}

// Key returns the canonical key for this DataSource:
// {source}_{ac}_{product_type}, per section 3.
func (d DataSource) Key() string {
	return fmt.Sprintf("%s_%s_%s", d.Source, d.AnalysisCenter, d.ProductType)
}

// entityStore is the subset of entitystore.Store the registry needs. Defined
// locally to avoid a hard dependency on the concrete entitystore package
// from this small, independently testable package.
type entityStore interface {
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, val any) error
}

// Store implements the Source Registry from section 4.7.
type Store struct {
	entities entityStore
}

// NewStore creates a new Store backed by the given entity state store.
func NewStore(entities entityStore) *Store {
	return &Store{entities: entities}
}

// UpdateSource implements update_source(DataSource) from section 4.7: upsert
// the given DataSource into the registry's map.
func (s *Store) UpdateSource(ctx context.Context, ds DataSource) error {
	sources, err := s.GetSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to load source registry: %w", err)
	}
	sources[ds.Key()] = ds
	if err := s.entities.Save(ctx, entityKey, sources); err != nil {
		return fmt.Errorf("failed to save source registry: %w", err)
	}
	return nil
}

// GetSources implements get_sources() from section 4.7: return all known
// data sources, keyed by their canonical Key().
func (s *Store) GetSources(ctx context.Context) (map[string]DataSource, error) {
	sources := make(map[string]DataSource)
	found, err := s.entities.Load(ctx, entityKey, &sources)
	if err != nil {
		return nil, fmt.Errorf("failed to load source registry: %w", err)
	}
	if !found {
		return make(map[string]DataSource), nil
	}
	return sources, nil
}
