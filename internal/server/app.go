// Package server builds the auditor's dependency graph and runs the HTTP
// service around it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/api"
	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/capture"
	"github.com/JakeFAU/pdp-auditor/internal/capture/auto"
	"github.com/JakeFAU/pdp-auditor/internal/capture/headless"
	"github.com/JakeFAU/pdp-auditor/internal/capture/static"
	"github.com/JakeFAU/pdp-auditor/internal/clock/system"
	"github.com/JakeFAU/pdp-auditor/internal/config"
	"github.com/JakeFAU/pdp-auditor/internal/dispatcher"
	"github.com/JakeFAU/pdp-auditor/internal/facts"
	"github.com/JakeFAU/pdp-auditor/internal/hash/sha256"
	"github.com/JakeFAU/pdp-auditor/internal/id/uuid"
	"github.com/JakeFAU/pdp-auditor/internal/llm"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
	"github.com/JakeFAU/pdp-auditor/internal/pipeline"
	"github.com/JakeFAU/pdp-auditor/internal/progress"
	"github.com/JakeFAU/pdp-auditor/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/pdp-auditor/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/pdp-auditor/internal/queue/memory"
	"github.com/JakeFAU/pdp-auditor/internal/report"
	blobstorage "github.com/JakeFAU/pdp-auditor/internal/storage"
	gcsstorage "github.com/JakeFAU/pdp-auditor/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pdp-auditor/internal/storage/local"
	memoryStorage "github.com/JakeFAU/pdp-auditor/internal/storage/memory"
	pgstore "github.com/JakeFAU/pdp-auditor/internal/storage/postgres"
	"github.com/JakeFAU/pdp-auditor/internal/synthesis"
	"github.com/JakeFAU/pdp-auditor/internal/telemetry"
	"github.com/JakeFAU/pdp-auditor/internal/worker"
)

// Version is stamped into trace resources. Override with -ldflags.
var Version = "dev"

// Options adjust Build for one-shot use.
type Options struct {
	// DryRun discards artifacts and reports instead of writing them.
	DryRun bool
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	pipeline  *pipeline.Pipeline
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     *queueMemory.Queue
	store     audit.RecordStore

	headless       *headless.Adapter
	pgStore        *pgstore.RecordStore
	storageClient  *storage.Client
	pubsubClient   *pubsub.Client
	publisher      *gcppublisher.Publisher
	tracerProvider *sdktrace.TracerProvider
	progress       *progress.Hub
}

// Build creates the application's dependencies. On error every resource
// acquired so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	if err := app.build(ctx, opts); err != nil {
		app.closeInfrastructure(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg, logger := a.cfg, a.logger
	var err error

	metrics.Init()
	if cfg.Telemetry.Enabled {
		a.tracerProvider, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, Version, cfg.Telemetry.SampleRatio)
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		logger.Info("tracing enabled", zap.Float64("sample_ratio", cfg.Telemetry.SampleRatio))
	}

	blobs, err := a.setupStorage(ctx, opts)
	if err != nil {
		return err
	}
	if err = a.setupDatabase(ctx); err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	capturer, err := a.setupCapture()
	if err != nil {
		return err
	}
	synth, err := a.setupSynthesis()
	if err != nil {
		return err
	}

	uploader, err := blobstorage.NewUploader(blobs, cfg.Storage.ArtifactPrefix, logger)
	if err != nil {
		return fmt.Errorf("uploader init failed: %w", err)
	}
	reporter, err := report.New(blobs, cfg.Storage.ReportPrefix, logger)
	if err != nil {
		return fmt.Errorf("reporter init failed: %w", err)
	}

	clock := system.New()
	deps := pipeline.Deps{
		Capturer:    capturer,
		Extractor:   facts.NewEngine(),
		Uploader:    uploader,
		Synthesizer: synth,
		Store:       a.store,
		Reporter:    reporter,
		Hasher:      sha256.New(),
		Clock:       clock,
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	if err = a.setupProgress(); err != nil {
		return err
	}
	if a.progress != nil {
		deps.Progress = a.progress
	}
	if a.tracerProvider != nil {
		deps.TracerProvider = a.tracerProvider
	}
	a.pipeline, err = pipeline.New(deps, pipeline.Config{
		Versions:           cfg.Versions,
		DefaultLocale:      cfg.Audit.DefaultLocale,
		CaptureTimeout:     cfg.CaptureTimeout(),
		BlockResources:     cfg.Capture.BlockResources,
		UploadConcurrency:  cfg.Audit.UploadConcurrency,
		OverwriteArtifacts: cfg.Audit.OverwriteArtifacts,
		SkipCache:          cfg.Audit.SkipCache,
		Topic:              cfg.PubSub.Topic,
	}, logger)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.queue = queueMemory.NewQueue(cfg.Worker.QueueDepth)
	workerCfg := worker.Config{
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff(),
		RunTimeout:   cfg.RunTimeout(),
	}
	workers := make([]*worker.Worker, 0, cfg.Worker.Count)
	for i := 0; i < cfg.Worker.Count; i++ {
		workers = append(workers, worker.New(
			a.queue,
			a.store,
			a.pipeline,
			clock,
			workerCfg,
			logger.With(zap.Int("index", i)),
		))
	}
	a.dispatch = dispatcher.New(a.queue, workers)
	logger.Info("worker pool configured",
		zap.Int("workers", cfg.Worker.Count),
		zap.Int("queue_depth", cfg.Worker.QueueDepth),
		zap.Int("max_attempts", workerCfg.MaxAttempts),
		zap.Duration("run_timeout", workerCfg.RunTimeout),
	)

	var ready []api.ReadinessCheck
	if a.pgStore != nil {
		ready = append(ready, a.pgStore.Ping)
	}
	a.apiServer = api.NewServer(a.store, a.dispatch, a.pipeline, uuid.New(), clock, cfg, logger, ready...)
	return nil
}

// Pipeline exposes the audit pipeline for one-shot runs.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Handler exposes the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the dispatcher and HTTP server and blocks until ctx is canceled
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// Workers outlive the serving context so buffered audits can drain.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(workCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not drain before shutdown deadline, canceling runs")
		cancelWork()
		<-dispatchDone
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases clients, the browser and telemetry.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progress != nil {
		if err := a.progress.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) setupStorage(ctx context.Context, opts Options) (blobstorage.BlobStore, error) {
	if opts.DryRun {
		a.logger.Info("dry run: artifacts and reports are discarded")
		return blobstorage.Discard{}, nil
	}
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:        a.cfg.Storage.GCSBucket,
			PublicBaseURL: a.cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.Backend != config.BackendPostgres {
		a.logger.Warn("using in-memory record store; records are lost on restart")
		a.store = memoryStorage.NewRecordStore()
		return nil
	}
	pg, err := pgstore.NewRecordStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		TablePrefix:     a.cfg.DB.TablePrefix,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	a.pgStore = pg
	if a.cfg.DB.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("record store migrate failed: %w", err)
		}
	}
	a.store = pg
	a.logger.Info("postgres record store initialized", zap.String("table_prefix", a.cfg.DB.TablePrefix))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (audit.Publisher, error) {
	if a.cfg.PubSub.Topic == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, run notices disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher, err = gcppublisher.New(client)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return a.publisher, nil
}

func (a *App) newStatic() *static.Adapter {
	return static.New(static.Config{Timeout: a.cfg.CaptureTimeout()})
}

// newHeadless starts the browser pool and records it for Close.
func (a *App) newHeadless() (*headless.Adapter, error) {
	hl, err := headless.New(headless.Config{
		MaxSessions:  a.cfg.Capture.MaxSessions,
		ReadyTimeout: time.Duration(a.cfg.Capture.ReadyTimeoutMs) * time.Millisecond,
		SettleDelay:  time.Duration(a.cfg.Capture.SettleDelayMs) * time.Millisecond,
		ExecPath:     a.cfg.Capture.ExecPath,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("headless capture init failed: %w", err)
	}
	a.headless = hl
	return hl, nil
}

func (a *App) setupCapture() (*capture.Orchestrator, error) {
	var adapter audit.CaptureAdapter
	switch a.cfg.Capture.Driver {
	case config.DriverStatic:
		adapter = a.newStatic()
		a.logger.Info("using static capture driver")
	case config.DriverAuto:
		hl, err := a.newHeadless()
		if err != nil {
			return nil, err
		}
		adapter, err = auto.New(a.newStatic(), hl, auto.NewDetector(a.cfg.Capture.PromotionThreshold), a.logger)
		if err != nil {
			return nil, fmt.Errorf("auto capture init failed: %w", err)
		}
		a.logger.Info("using auto capture driver",
			zap.Int("max_sessions", a.cfg.Capture.MaxSessions),
			zap.Int("promotion_threshold", a.cfg.Capture.PromotionThreshold),
		)
	default:
		hl, err := a.newHeadless()
		if err != nil {
			return nil, err
		}
		adapter = hl
		a.logger.Info("using headless capture driver", zap.Int("max_sessions", a.cfg.Capture.MaxSessions))
	}
	orch, err := capture.NewOrchestrator(adapter, capture.Config{
		HostQPS:   a.cfg.Capture.HostQPS,
		HostBurst: a.cfg.Capture.HostBurst,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("capture orchestrator init failed: %w", err)
	}
	return orch, nil
}

func (a *App) setupSynthesis() (*synthesis.Engine, error) {
	model, err := llm.New(llm.Config{
		Provider:   a.cfg.LLM.Provider,
		Model:      a.cfg.LLM.Model,
		APIKey:     a.cfg.LLM.APIKey,
		BaseURL:    a.cfg.LLM.BaseURL,
		MaxTokens:  a.cfg.LLM.MaxTokens,
		MaxRetries: a.cfg.LLM.MaxRetries,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("llm init failed: %w", err)
	}
	var opts []synthesis.Option
	if model != nil {
		opts = append(opts, synthesis.WithModel(model))
		a.logger.Info("model synthesis enabled", zap.String("provider", a.cfg.LLM.Provider), zap.String("model", a.cfg.LLM.Model))
	} else {
		a.logger.Info("no language model configured, using rule-based synthesis")
	}
	return synthesis.NewEngine(synthesis.Config{
		AllowInsufficientEvidence: a.cfg.Synthesis.AllowInsufficientEvidence,
		ModelTimeout:              a.cfg.ModelTimeout(),
		Guardrails: synthesis.Guardrails{
			MaxTickets:     a.cfg.Synthesis.MaxTickets,
			MaxLargeEffort: a.cfg.Synthesis.MaxLargeEffort,
		},
	}, a.logger, opts...), nil
}

var (
	progressSinkOnce sync.Once
	progressSink     *sinks.PrometheusSink
	errProgressSink  error
)

// setupProgress starts the progress hub. The Prometheus sink registers once
// per process so repeated builds share its collectors.
func (a *App) setupProgress() error {
	if !a.cfg.Progress.Enabled {
		return nil
	}
	progressSinkOnce.Do(func() {
		progressSink, errProgressSink = sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	})
	if errProgressSink != nil {
		return fmt.Errorf("progress sink init failed: %w", errProgressSink)
	}
	hubSinks := []progress.Sink{progressSink}
	if a.cfg.Progress.LogEvents {
		hubSinks = append(hubSinks, sinks.NewLogSink(a.logger))
	}
	a.progress = progress.NewHub(progress.Config{
		BufferSize: a.cfg.Progress.BufferSize,
		Logger:     a.logger,
	}, hubSinks...)
	return nil
}
