package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/phoenixlabs/phoenix/internal/config"
	"github.com/phoenixlabs/phoenix/internal/logger"
	"github.com/phoenixlabs/phoenix/internal/observability"
	"github.com/phoenixlabs/phoenix/internal/tracing"
	"github.com/phoenixlabs/phoenix/pkg/chat"
	"github.com/phoenixlabs/phoenix/pkg/checkpoint"
	"github.com/phoenixlabs/phoenix/pkg/retrieval"
	"github.com/phoenixlabs/phoenix/pkg/threads"
	"github.com/phoenixlabs/phoenix/pkg/toolexec"
	"github.com/phoenixlabs/phoenix/pkg/tools"
	"github.com/phoenixlabs/phoenix/pkg/youtube"
)

// Daemon assembles the phoenix service: conversation orchestration, the
// retrieval stack, checkpoint persistence, thread metadata and the metrics
// endpoint.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	threadStore     *threads.Store
	checkpointStore *checkpoint.Store
	checkpointSweep *checkpoint.Cleanup
	embedder        retrieval.EmbeddingProvider
	indexStore      *retrieval.IndexStore
	cache           *retrieval.Cache
	pipeline        *retrieval.Pipeline
	watcher         *retrieval.UploadWatcher
	transcripts     *youtube.Client
	executor        *toolexec.Executor
	provider        chat.LLMProvider
	orchestrator    *chat.Orchestrator

	// Services
	metricsServer *http.Server
	lifecycle     *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a daemon instance with all modules wired
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()
	if err := tracing.InitOpenTelemetry("phoenix"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		log.Info().Msg("Tracing initialized")
	}

	d := &Daemon{
		config:         cfg,
		logger:         log,
		ctx:            ctx,
		cancel:         cancel,
		tracingEnabled: true,
	}

	if err := d.initializeModules(); err != nil {
		cancel()
		if d.tracingEnabled {
			_ = tracing.ShutdownOpenTelemetry(context.Background())
			d.tracingEnabled = false
		}
		return nil, fmt.Errorf("failed to initialize modules: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeModules builds the module graph in dependency order
func (d *Daemon) initializeModules() error {
	zlog := d.logger.GetZerolog()

	threadStore, err := threads.NewStore(d.config.DataDir, zlog)
	if err != nil {
		return fmt.Errorf("failed to create thread store: %w", err)
	}
	d.threadStore = threadStore
	d.logger.Info().Msg("Thread store initialized")

	checkpointStore, err := checkpoint.NewStore(d.config.DataDir, zlog)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	d.checkpointStore = checkpointStore
	d.checkpointSweep = checkpoint.NewCleanup(checkpointStore, d.config.Checkpoints, zlog)
	d.logger.Info().Msg("Checkpoint store initialized")

	d.embedder = retrieval.NewOpenAIEmbedder(d.config.AI.OpenAIKey, d.config.AI.EmbeddingModel, d.config.Retrieval.EmbeddingDims)
	d.indexStore = retrieval.NewIndexStore(d.config.DataDir, d.embedder, zlog)
	d.cache = retrieval.NewCache(d.indexStore, d.cacheIdleTTL(), zlog)
	d.pipeline = retrieval.NewPipeline(d.cache, d.indexStore, d.embedder, d.config.Retrieval, zlog)
	d.logger.Info().Msg("Retrieval stack initialized")

	if d.config.Retrieval.WatchUploads {
		watcher, err := retrieval.NewUploadWatcher(d.pipeline, d.config.DataDir, zlog)
		if err != nil {
			return fmt.Errorf("failed to create upload watcher: %w", err)
		}
		d.watcher = watcher
		d.logger.Info().Msg("Upload watcher initialized")
	}

	d.transcripts = youtube.NewClient(zlog)

	d.executor = toolexec.New()
	if err := tools.RegisterBuiltinTools(d.executor, tools.Options{
		ExchangeAPIKey: d.config.Tools.ExchangeAPIKey,
		TopK:           d.config.Retrieval.TopK,
		Cache:          d.cache,
		Pipeline:       d.pipeline,
		Transcripts:    d.transcripts,
	}); err != nil {
		return fmt.Errorf("failed to register builtin tools: %w", err)
	}
	d.logger.Info().Int("tools", d.executor.Count()).Msg("Tool executor initialized")

	provider, err := chat.NewProvider(d.config.AI)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	d.provider = provider
	d.orchestrator = chat.NewOrchestrator(provider, d.executor, d.checkpointStore, d.config, zlog)
	d.logger.Info().Str("provider", provider.Provider()).Msg("Orchestrator initialized")

	return nil
}

// Start starts the daemon services
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.checkpointSweep.Start(); err != nil {
		return fmt.Errorf("failed to start checkpoint cleanup: %w", err)
	}

	if ttl := d.cacheIdleTTL(); ttl > 0 {
		d.startCacheSweeper(ttl)
	}

	if d.config.Metrics.Enabled {
		d.startMetricsServer()
	}

	d.startTime = time.Now()
	d.running = true

	d.logger.Info().Msg("Phoenix daemon started")
	return nil
}

// Stop stops the daemon services
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return fmt.Errorf("daemon is not running")
	}

	d.cancel()

	if d.metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
		shutdownCancel()
		d.metricsServer = nil
	}

	d.checkpointSweep.Stop()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Upload watcher stop failed")
		}
	}

	d.wg.Wait()

	d.cache.Close()
	if err := d.threadStore.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Thread store close failed")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Lifecycle manager stop failed")
	}

	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}

	d.running = false
	d.logger.Info().Msg("Phoenix daemon stopped")
	return nil
}

func (d *Daemon) cacheIdleTTL() time.Duration {
	return time.Duration(d.config.Retrieval.CacheIdleTTL) * time.Minute
}

// startCacheSweeper evicts retrievers idle past the configured TTL
func (d *Daemon) startCacheSweeper(ttl time.Duration) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if evicted := d.cache.EvictIdle(); evicted > 0 {
					d.logger.Debug().Int("evicted", evicted).Msg("Idle retrievers released")
				}
			}
		}
	}()
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", d.config.Metrics.Host, d.config.Metrics.Port)
	d.metricsServer = &http.Server{Addr: addr, Handler: mux}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// IsRunning reports whether the daemon is started
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Chat advances one conversation turn-chain for a thread
func (d *Daemon) Chat(ctx context.Context, ownerID, threadID, userMessage string) (chat.State, error) {
	return d.orchestrator.Advance(ctx, ownerID, threadID, userMessage)
}

// Threads exposes the thread metadata store
func (d *Daemon) Threads() *threads.Store {
	return d.threadStore
}

// Pipeline exposes the ingestion pipeline for direct uploads
func (d *Daemon) Pipeline() *retrieval.Pipeline {
	return d.pipeline
}

// WatchThread starts watching the upload directory for a thread
func (d *Daemon) WatchThread(ownerID, threadID string) error {
	if d.watcher == nil {
		return fmt.Errorf("upload watching is disabled")
	}
	return d.watcher.WatchThread(ownerID, threadID)
}
