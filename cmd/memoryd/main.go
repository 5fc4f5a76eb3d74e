// Package main implements the agentdb memory daemon entrypoint.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/agentdb/memory/internal/budget"
	"github.com/agentdb/memory/internal/bus"
	"github.com/agentdb/memory/internal/capability"
	"github.com/agentdb/memory/internal/compression"
	"github.com/agentdb/memory/internal/config"
	"github.com/agentdb/memory/internal/daemon"
	"github.com/agentdb/memory/internal/embedder"
	"github.com/agentdb/memory/internal/episode"
	"github.com/agentdb/memory/internal/hooks"
	"github.com/agentdb/memory/internal/provenance"
	"github.com/agentdb/memory/internal/routing"
	"github.com/agentdb/memory/pkg/metrics"
	"github.com/agentdb/memory/pkg/mid"
	"github.com/agentdb/memory/pkg/repo"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := run(cfg, logger); err != nil {
		logger.Error("memoryd exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return err
	}

	embedClient := embedder.New(embedder.DefaultOptions(cfg.EmbeddingEndpoint, "nomic-embed-text"))
	embed := embedClient.Embed

	compressor := compression.New(compression.ManagerOptions{
		Dimension:     cfg.Dimension,
		AccessWindow:  cfg.AccessWindow,
		HeatDecayRate: cfg.HeatDecayRate,
		Logger:        logger,
	})
	go compressor.RunAutoTransition(ctx, time.Minute)

	episodeStore, err := episode.New(episode.Options{
		Dimension:  cfg.Dimension,
		Embed:      embed,
		Compressor: compressor,
	})
	if err != nil {
		return err
	}

	capIndex, err := capability.NewIndex(cfg.Dimension)
	if err != nil {
		return err
	}
	agentsPath := filepath.Join(cfg.DataDir, "agents")
	if err := os.MkdirAll(agentsPath, 0o755); err != nil {
		return err
	}
	diskCache := capability.NewDiskCache(cfg.CacheDir, cfg.EmbeddingEndpoint, agentsPath)
	if err := diskCache.SweepOrphans(); err != nil {
		logger.Warn("cache sweep failed", "err", err)
	}
	if err := loadCapabilities(ctx, diskCache, capIndex, agentsPath, cfg.Dimension, embed, logger); err != nil {
		return err
	}

	routingEngine := routing.New(routing.Options{
		CapabilityIndex: capIndex,
		Embed:           embed,
	})

	provenanceGraph := provenance.New()
	var capRepo *repo.Neo4jRepo[capability.Entry, string]
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return err
		}
		defer driver.Close(ctx)

		provStore := provenance.NewNeo4jStore(driver)
		if loaded, err := provStore.LoadGraph(ctx); err == nil {
			provenanceGraph = loaded
		} else {
			logger.Warn("provenance graph load failed, starting empty", "err", err)
		}

		capRepo = capability.NewNeo4jRepo(driver)
	}

	eventBus := bus.New(bus.DefaultCapacity)
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats connect failed, activity bus stays in-process only", "err", err)
		} else {
			defer nc.Close()
			bus.NewNATSFanout(nc).Attach(eventBus)
			logger.Info("activity bus fanning out to nats", "url", cfg.NATSURL)
		}
	}

	hookRegistry := hooks.New()
	if err := registerBuiltinHooks(hookRegistry); err != nil {
		return err
	}
	if err := hookRegistry.Initialize(); err != nil {
		return err
	}
	trajectoryCache := budget.NewTrajectoryCache(budget.DefaultTrajectoryCacheEntries)
	hookExecutor := hooks.NewExecutor(hookRegistry, nil, trajectoryCache)

	monitor := budget.New()
	monitor.Register(budget.ComponentEpisodeCache, episodeCacheUsage{episodeStore}, noopEvictor{logger, "episode_cache"})
	monitor.Register(budget.ComponentEmbeddingCache, embeddingCacheUsage{embedClient}, noopEvictor{logger, "embedding_cache"})
	monitor.Register(budget.ComponentTrajectoryCache, trajectoryCache, trajectoryCache)
	tokenTracker := budget.NewTokenTracker(budget.DefaultFlushLimit, nil)

	go monitorLoop(ctx, monitor, eventBus, logger)

	metricsRegistry := metrics.New()
	go serveMetrics(metricsRegistry, metricsPort(cfg.HealthAddr, logger), logger)

	healthServer := daemon.NewHealthServer("agentdb.memory")
	go func() {
		if err := healthServer.Serve(cfg.GRPCHealthAddr); err != nil {
			logger.Error("grpc health server exited", "addr", cfg.GRPCHealthAddr, "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		healthServer.Stop()
	}()

	svc := &daemon.Services{
		Episodes:     episodeStore,
		Capabilities: capIndex,
		Routing:      routingEngine,
		Metrics:      metricsRegistry,
		Tokens:       tokenTracker,
		StartedAt:    time.Now(),
		Provenance:   provenanceGraph,
		CapabilityDB: capRepo,
		Hooks:        hookExecutor,
		Logger:       logger,
	}

	dispatcher := daemon.NewDispatcher()
	daemon.RegisterMethods(dispatcher, svc)

	srv := daemon.NewServer(cfg.SocketPath, cfg.PIDFilePath, dispatcher, logger)
	return srv.Run(ctx)
}

// loadCapabilities implements the disk-cache load-or-rebuild path from
// spec.md §4.4: try the content-hash-addressed cache first, and only pay
// the embedding cost for agent descriptions when the directory changed.
func loadCapabilities(ctx context.Context, cache *capability.DiskCache, idx *capability.Index, agentsPath string, dimension int, embed capability.EmbedFunc, logger *slog.Logger) error {
	hash, err := capability.ComputeContentHash(agentsPath)
	if err != nil {
		return err
	}

	entries, loadErr := cache.Load(dimension, hash)
	if loadErr == nil {
		logger.Info("capability cache hit", "agents", len(entries))
		return idx.Rebuild(entries)
	}
	logger.Info("capability cache miss, rebuilding", "reason", loadErr)

	started := time.Now()
	entries, err = capability.LoadAgentDescriptions(ctx, agentsPath, embed)
	if err != nil {
		return err
	}
	if err := idx.Rebuild(entries); err != nil {
		return err
	}
	return cache.Save(entries, dimension, hash, time.Since(started).Milliseconds())
}

func registerBuiltinHooks(r *hooks.Registry) error {
	if err := r.Register(hooks.Hook{
		ID:       "task-result-capture",
		Priority: 10,
		Post: func(ctx hooks.PostContext) (hooks.PostResult, error) {
			return hooks.PostResult{Continue: true}, nil
		},
	}); err != nil {
		return err
	}
	return r.Register(hooks.Hook{
		ID:       "quality-assessment-trigger",
		Priority: 20,
		Post: func(ctx hooks.PostContext) (hooks.PostResult, error) {
			return hooks.PostResult{Continue: true}, nil
		},
	})
}

// episodeCacheUsage and embeddingCacheUsage report live counts against the
// default budgets so the monitor has real numbers to alert on. Neither the
// episode store nor the embedding cache track per-entry recency today, so
// their Evictor is a logging no-op rather than an enforced eviction
// (documented simplification in DESIGN.md).
type episodeCacheUsage struct{ store *episode.Store }

func (u episodeCacheUsage) Usage() (current, limit int64) {
	return int64(u.store.Size()), budget.DefaultEpisodeCacheEntries
}

type embeddingCacheUsage struct{ client *embedder.Client }

func (u embeddingCacheUsage) Usage() (current, limit int64) {
	return int64(u.client.CacheSize()), budget.DefaultEmbeddingCacheBytes
}

type noopEvictor struct {
	logger    *slog.Logger
	component string
}

func (e noopEvictor) Evict(fraction float64) budget.EvictionResult {
	e.logger.Warn("budget over threshold, eviction not yet enforced for this component", "component", e.component, "fraction", fraction)
	return budget.EvictionResult{Success: false, Error: "eviction not implemented for this provider"}
}

// monitorLoop polls the budget monitor and republishes any reaction onto
// the activity bus (spec.md §4.10 "React").
func monitorLoop(ctx context.Context, monitor *budget.Monitor, eventBus *bus.Bus, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			alerts := monitor.Check()
			if len(alerts) == 0 {
				continue
			}
			results := monitor.React()
			for component, result := range results {
				eventBus.Publish(bus.Event{
					Kind:    bus.KindEvictionRan,
					Subject: string(component),
					Data:    map[string]any{"evicted": result.Evicted, "success": result.Success},
				})
			}
		}
	}
}

// serveMetrics exposes /metrics through the teacher's middleware chain
// (access logging and panic recovery) rather than bare metrics.Registry.Serve,
// so a panic inside a future /metrics extension can't take the whole process
// down.
func serveMetrics(reg *metrics.Registry, port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	handler := mid.Chain(mux, mid.Recover(logger), mid.Logger(logger))
	addr := ":" + strconv.Itoa(port)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error("metrics server exited", "addr", addr, "err", err)
	}
}

// metricsPort extracts the port component of a host:port address for
// serveMetrics, which takes a bare int.
func metricsPort(addr string, logger *slog.Logger) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		logger.Warn("invalid health addr, defaulting metrics port", "addr", addr, "err", err)
		return 8091
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 8091
	}
	return port
}
