// Package api implements the boundary-only Query API façade specified in
// section 6.4 of the design specification. It is explicitly out of the
// core's scope (section 1: "the Axum HTTP façade") but boundary-visible, so
// it is given a minimal, real implementation here: a gorilla/mux router that
// calls directly into the in-process keyed entities (orbit.Store,
// registry.Store, ingestion.Handler) with no separate ingress process, since
// the durable-runtime ingress itself is out of scope (section 1).
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/geoceiver/cddis-archiver/ingestion"
	"github.com/geoceiver/cddis-archiver/orbit"
)

// orbitStore is the subset of orbit.Store this façade calls into.
type orbitStore interface {
	GetOrbit(ctx context.Context, svKey string) (orbit.Orbit, error)
	GetOrbitPosition(ctx context.Context, svKey string, epoch float64) (orbit.Orbit, error)
	GetSatellites(ctx context.Context, ds orbit.DataSource) ([]string, error)
}

// sourceRegistry is the subset of registry.Store this façade calls into.
type sourceRegistry interface {
	GetSources(ctx context.Context) (map[string]RegistrySource, error)
}

// RegistrySource is the façade's view of a registry entry; cmd wiring
// adapts registry.DataSource into this shape to keep api decoupled from the
// registry package's concrete type, matching the same pattern used between
// orbit and registry.
type RegistrySource struct {
	Source         string `json:"source"`
	AnalysisCenter string `json:"analysisCenter"`
	ProductType    string `json:"productType"`
}

// ingestionTrigger is the subset of ingestion.Handler this façade calls
// into for POST /orbit/source.
type ingestionTrigger interface {
	Process(ctx context.Context, file ingestion.SP3File) error
}

// Server implements the routes from section 6.4.
type Server struct {
	orbits   orbitStore
	sources  sourceRegistry
	ingester ingestionTrigger
	router   *mux.Router
}

// NewServer builds a Server with its routes registered.
func NewServer(orbits orbitStore, sources sourceRegistry, ingester ingestionTrigger) *Server {
	s := &Server{orbits: orbits, sources: sources, ingester: ingester, router: mux.NewRouter()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/orbit/sources", s.handleGetSources).Methods(http.MethodGet)
	s.router.HandleFunc("/orbit/source", s.handlePostSource).Methods(http.MethodPost)
	s.router.HandleFunc("/orbits/{source_key}/{epoch}", s.handleGetOrbits).Methods(http.MethodGet)
	s.router.HandleFunc("/orbit/{source_key}/{sv}/{epoch}", s.handleGetOrbit).Methods(http.MethodGet)
	s.router.HandleFunc("/orbit/{source_key}/{sv}", s.handleGetOrbit).Methods(http.MethodGet)
}

// handleGetOrbit implements GET /orbit/{source_key}/{sv}/{epoch?} from
// section 6.4: 404 if unknown sv.
func (s *Server) handleGetOrbit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	svKey := vars["source_key"] + "_" + vars["sv"]

	var (
		o   orbit.Orbit
		err error
	)
	if epochStr, ok := vars["epoch"]; ok {
		epoch, perr := strconv.ParseFloat(epochStr, 64)
		if perr != nil {
			http.Error(w, "invalid epoch", http.StatusBadRequest)
			return
		}
		o, err = s.orbits.GetOrbitPosition(r.Context(), svKey, epoch)
	} else {
		o, err = s.orbits.GetOrbit(r.Context(), svKey)
	}
	if err != nil {
		writeOrbitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// handleGetOrbits implements GET /orbits/{source_key}/{epoch} from
// section 6.4: interpolated positions for every known satellite of a source.
func (s *Server) handleGetOrbits(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sourceKey := vars["source_key"]

	epoch, err := strconv.ParseFloat(vars["epoch"], 64)
	if err != nil {
		http.Error(w, "invalid epoch", http.StatusBadRequest)
		return
	}

	ds, ok := parseSourceKey(sourceKey)
	if !ok {
		http.Error(w, "invalid source key", http.StatusBadRequest)
		return
	}

	sats, err := s.orbits.GetSatellites(r.Context(), ds)
	if err != nil {
		writeOrbitError(w, err)
		return
	}

	orbits := make([]orbit.Orbit, 0, len(sats))
	for _, sv := range orbit.SortedSatellites(sats) {
		svKey := sourceKey + "_" + strings.ToLower(sv)
		o, err := s.orbits.GetOrbitPosition(r.Context(), svKey, epoch)
		if err != nil {
			continue
		}
		orbits = append(orbits, o)
	}
	writeJSON(w, http.StatusOK, orbits)
}

// handleGetSources implements GET /orbit/sources from section 6.4.
func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.GetSources(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

// handlePostSource implements POST /orbit/source from section 6.4: triggers
// ingestion of the given SP3File.
func (s *Server) handlePostSource(w http.ResponseWriter, r *http.Request) {
	var file ingestion.SP3File
	if err := json.NewDecoder(r.Body).Decode(&file); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.ingester.Process(r.Context(), file); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeOrbitError(w http.ResponseWriter, err error) {
	switch err {
	case orbit.ErrMissingOrbit:
		http.Error(w, err.Error(), http.StatusNotFound)
	case orbit.ErrOutOfRange:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseSourceKey splits "{source}_{ac}_{product_type}" back into a
// DataSource. The source/ac/product_type tokens are themselves assumed
// underscore-free, matching every AC/product-type code in section 6.2's
// three-letter grammar.
func parseSourceKey(key string) (orbit.DataSource, bool) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		return orbit.DataSource{}, false
	}
	return orbit.DataSource{Source: parts[0], AnalysisCenter: parts[1], ProductType: parts[2]}, true
}
