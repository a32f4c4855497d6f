// Package main implements the process entry point specified in section 6.6
// of the design specification. It validates required environment, wires
// every component, and starts both HTTP surfaces.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/geoceiver/cddis-archiver/api"
	"github.com/geoceiver/cddis-archiver/awsclient"
	"github.com/geoceiver/cddis-archiver/campaign"
	"github.com/geoceiver/cddis-archiver/config"
	"github.com/geoceiver/cddis-archiver/entity"
	"github.com/geoceiver/cddis-archiver/entitystore"
	"github.com/geoceiver/cddis-archiver/gpst"
	"github.com/geoceiver/cddis-archiver/ingestion"
	"github.com/geoceiver/cddis-archiver/manifest"
	"github.com/geoceiver/cddis-archiver/metrics"
	"github.com/geoceiver/cddis-archiver/objectstore"
	"github.com/geoceiver/cddis-archiver/orbit"
	"github.com/geoceiver/cddis-archiver/queue"
	"github.com/geoceiver/cddis-archiver/registry"
	"github.com/geoceiver/cddis-archiver/remotearchive"
	"github.com/geoceiver/cddis-archiver/week"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the process as specified in section 6.6.
func run() error {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.R2Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "",
		)),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := awsclient.NewS3Client(s3.NewFromConfig(awsCfg))
	bucket := cfg.R2Path

	entities := entitystore.NewS3Store(s3Client, bucket, "state")
	mirror := objectstore.New(s3Client, bucket)
	manifests := manifest.NewS3Store(s3Client, bucket)
	remote := remotearchive.NewClient(cfg.EarthdataToken)
	dispatcher := entity.NewDispatcher()

	procMetrics := metrics.New()

	registrySource := registry.NewStore(entities)
	orbitStore := orbit.NewStore(entities, registryAdapter{registrySource})
	ingestionHandler := ingestion.NewHandler(mirror, entities, orbitStore, procMetrics)
	queueHandler := queue.NewHandler(remote, mirror, entities, manifests, ingestionHandler, dispatcher, procMetrics)
	weekWorkflow := week.NewWorkflow(entities, remote, manifests, queueHandler, dispatcher)
	campaignWorkflow := campaign.NewWorkflow(entities, weekWorkflow, gpstClock{}, dispatcher)

	server := api.NewServer(orbitStore, apiRegistryAdapter{registrySource}, ingestionHandler)

	facade := &http.Server{Addr: cfg.FacadeAddr, Handler: server}
	runtime := &http.Server{Addr: cfg.RuntimeAddr, Handler: runtimeMux(server, campaignWorkflow, weekWorkflow, queueHandler, procMetrics)}

	errCh := make(chan error, 2)
	go func() { errCh <- facade.ListenAndServe() }()
	go func() { errCh <- runtime.ListenAndServe() }()

	fmt.Printf("cddis-archiver listening: facade=%s runtime=%s\n", cfg.FacadeAddr, cfg.RuntimeAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = facade.Shutdown(shutdownCtx)
	_ = runtime.Shutdown(shutdownCtx)
	dispatcher.Wait()

	return nil
}

// loadConfig reads the environment-sourced Config fields, per section 6.6.
func loadConfig() *config.Config {
	return &config.Config{
		EarthdataToken:      os.Getenv("EARTHDATA_TOKEN"),
		R2Path:              os.Getenv("R2_PATH"),
		R2Region:            os.Getenv("R2_REGION"),
		AWSAccessKeyID:      os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
		RuntimeAddr:         envOr("RUNTIME_ADDR", "0.0.0.0:9080"),
		FacadeAddr:          envOr("FACADE_ADDR", "0.0.0.0:3010"),
		ShutdownTimeout:     5 * time.Second,
		HTTPIdleConnTimeout: 90 * time.Second,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// gpstClock adapts package gpst's free functions to campaign.Workflow's
// clock interface.
type gpstClock struct{}

func (gpstClock) CurrentSeconds() float64 { return gpst.CurrentSeconds() }
func (gpstClock) CurrentWeek() uint       { return gpst.CurrentWeek() }

// registryAdapter bridges registry.Store (which speaks registry.DataSource)
// into orbit's locally-scoped sourceRegistry interface (which speaks
// orbit.DataSource), the two being identically shaped but intentionally
// distinct named types so neither package imports the other.
type registryAdapter struct {
	store *registry.Store
}

func (a registryAdapter) UpdateSource(ctx context.Context, ds orbit.DataSource) error {
	return a.store.UpdateSource(ctx, registry.DataSource(ds))
}

// apiRegistryAdapter bridges registry.Store into api's locally-scoped
// sourceRegistry interface, converting registry.DataSource values into
// api.RegistrySource.
type apiRegistryAdapter struct {
	store *registry.Store
}

func (a apiRegistryAdapter) GetSources(ctx context.Context) (map[string]api.RegistrySource, error) {
	sources, err := a.store.GetSources(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]api.RegistrySource, len(sources))
	for k, ds := range sources {
		out[k] = api.RegistrySource{Source: ds.Source, AnalysisCenter: ds.AnalysisCenter, ProductType: ds.ProductType}
	}
	return out, nil
}

// runtimeMux exposes the same operations the durable runtime would invoke on
// :9080, per section 6.6: the external scheduler's concrete call surface for
// starting and inspecting the keyed workflows, without implementing the
// scheduler itself. The query-only façade routes are also mounted here so a
// single process can be driven entirely through this port.
func runtimeMux(facade http.Handler, c *campaign.Workflow, w *week.Workflow, q *queue.Handler, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/orbit/", facade)
	mux.Handle("/orbits/", facade)

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writeRuntimeResult(rw, m.Snapshot(), nil)
	})

	mux.HandleFunc("/campaign", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req campaign.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(rw, "invalid request body", http.StatusBadRequest)
			return
		}
		go func() {
			if err := c.Run(context.Background(), req); err != nil {
				fmt.Printf("campaign %s failed: %v\n", req.RequestID, err)
			}
		}()
		rw.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/campaign/status", func(rw http.ResponseWriter, r *http.Request) {
		requestID := r.URL.Query().Get("request_id")
		status, err := c.GetStatus(r.Context(), requestID)
		writeRuntimeResult(rw, status, err)
	})

	mux.HandleFunc("/week", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req week.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(rw, "invalid request body", http.StatusBadRequest)
			return
		}
		go func() {
			if err := w.Run(context.Background(), req); err != nil {
				fmt.Printf("week %s failed: %v\n", req.Key(), err)
			}
		}()
		rw.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/queue/status", func(rw http.ResponseWriter, r *http.Request) {
		fq := queue.FileQueue{RequestID: r.URL.Query().Get("request_id")}
		if n, err := strconv.ParseUint(r.URL.Query().Get("queue_num"), 10, 64); err == nil {
			fq.QueueNum = uint(n)
		}
		status, err := q.GetStatus(r.Context(), fq)
		writeRuntimeResult(rw, status, err)
	})

	return mux
}

// writeRuntimeResult encodes v as JSON, translating entity.TerminalError into
// a 404 (matching section 7's "get_status returns TerminalError when the
// record is missing").
func writeRuntimeResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		var terminal *entity.TerminalError
		if errors.As(err, &terminal) {
			http.Error(w, terminal.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
