package registry

import (
	"context"
	"testing"

	"github.com/geoceiver/cddis-archiver/entitystore"
)

func TestUpdateSourceAndGetSources(t *testing.T) {
	store := NewStore(entitystore.NewMemoryStore())
	ctx := context.Background()

	cod := DataSource{Source: "CDDIS", AnalysisCenter: "COD", ProductType: "ULT"}
	gfz := DataSource{Source: "CDDIS", AnalysisCenter: "GFZ", ProductType: "ULT"}

	if err := store.UpdateSource(ctx, cod); err != nil {
		t.Fatalf("UpdateSource(cod) error = %v", err)
	}
	if err := store.UpdateSource(ctx, gfz); err != nil {
		t.Fatalf("UpdateSource(gfz) error = %v", err)
	}

	sources, err := store.GetSources(ctx)
	if err != nil {
		t.Fatalf("GetSources() error = %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[cod.Key()] != cod {
		t.Errorf("sources[%s] = %+v, want %+v", cod.Key(), sources[cod.Key()], cod)
	}
}

func TestGetSourcesEmpty(t *testing.T) {
	store := NewStore(entitystore.NewMemoryStore())
	sources, err := store.GetSources(context.Background())
	if err != nil {
		t.Fatalf("GetSources() error = %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("got %d sources, want 0", len(sources))
	}
}
