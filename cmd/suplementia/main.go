// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command suplementia starts the supplement search service: the HTTP
// boundary (search, admin ingest, health/readiness) plus the background
// discovery worker.
//
// Usage:
//
//	go run ./cmd/suplementia
//	go run ./cmd/suplementia -port 9090
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/latisnere/suplementia/internal/badgerstore"
	"github.com/latisnere/suplementia/internal/cache"
	"github.com/latisnere/suplementia/internal/config"
	"github.com/latisnere/suplementia/internal/discovery"
	"github.com/latisnere/suplementia/internal/embedding"
	"github.com/latisnere/suplementia/internal/httpapi"
	"github.com/latisnere/suplementia/internal/llmfallback"
	"github.com/latisnere/suplementia/internal/normalizer"
	"github.com/latisnere/suplementia/internal/observability"
	"github.com/latisnere/suplementia/internal/orchestrator"
	"github.com/latisnere/suplementia/internal/pubmed"
	"github.com/latisnere/suplementia/internal/seed"
	"github.com/latisnere/suplementia/internal/vectorstore"
)

// backlogCheckInterval is how often watchBacklog polls the discovery
// queue's PENDING count against the configured alert threshold.
const backlogCheckInterval = time.Minute

// watchBacklog polls the discovery queue's backlog on a schedule and emits
// a high-severity log record whenever it exceeds threshold, until ctx is
// cancelled.
func watchBacklog(ctx context.Context, queue *discovery.Queue, threshold int, logger *slog.Logger) {
	ticker := time.NewTicker(backlogCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := queue.BacklogCount(ctx)
			if err != nil {
				logger.Warn("backlog count failed", slog.String("error", err.Error()))
				continue
			}
			observability.DiscoveryBacklog.Set(float64(count))
			if count > threshold {
				logger.Error("discovery backlog exceeds alert threshold",
					slog.Int("backlog", count),
					slog.Int("threshold", threshold),
					slog.String("severity", "high"))
			}
		}
	}
}

func main() {
	port := flag.Int("port", 0, "port to listen on, overrides LISTEN_ADDR's port")
	debug := flag.Bool("debug", false, "enable debug mode")
	bootstrap := flag.Bool("bootstrap", false, "ingest the starter supplement catalog and exit")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := observability.NewLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.ListenAddr = fmt.Sprintf(":%d", *port)
	}

	shutdownTracing, err := observability.SetupTracing(context.Background())
	if err != nil {
		logger.Error("tracing setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dict, err := normalizer.LoadDictionary(cfg.DictionaryPath)
	if err != nil {
		logger.Warn("dictionary load failed, using built-in default", slog.String("error", err.Error()))
		dict = normalizer.DefaultDictionary()
	}

	embedSvc := embedding.New(cfg.EmbeddingServiceURL, cfg.EmbeddingModel)
	warmTexts := make([]string, len(seed.Catalog))
	for i, entry := range seed.Catalog {
		warmTexts[i] = entry.CanonicalName
	}
	if err := embedSvc.Warm(context.Background(), warmTexts...); err != nil {
		logger.Warn("embedding service warmup failed, continuing unwarmed", slog.String("error", err.Error()))
	}

	var normOpts []normalizer.Option
	if cfg.LLMAPIKey != "" {
		llmClient := llmfallback.New(cfg.LLMAPIKey, cfg.LLMModel, "")
		normOpts = append(normOpts, normalizer.WithLLMFallback(llmClient, cfg.LLMTimeout))
	}
	norm := normalizer.New(dict, normOpts...)

	var store vectorstore.VectorStore
	if cfg.VectorStoreURL != "" {
		ws, err := vectorstore.NewWeaviateVectorStore(cfg.VectorStoreURL, cfg.RequestTimeout)
		if err != nil {
			logger.Error("weaviate store init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := ws.SetupSchema(context.Background()); err != nil {
			logger.Error("weaviate schema setup failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = ws
		logger.Info("vector store: weaviate", slog.String("url", cfg.VectorStoreURL))
	} else {
		store = vectorstore.NewMemoryVectorStore()
		logger.Info("vector store: embedded in-memory HNSW (VECTOR_STORE_URL unset)")
	}

	bdb, err := badgerstore.Open(cfg.BadgerPath, logger)
	if err != nil {
		logger.Error("badger open failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	l1, err := cache.NewL1Cache()
	if err != nil {
		logger.Error("l1 cache init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	l2 := cache.NewL2Cache(bdb, logger)
	tiered := cache.NewTiered(logger, l1, l2)

	var embeddedBroker *discovery.EmbeddedBroker
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("nats connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		embeddedBroker, err = discovery.StartEmbeddedBroker()
		if err != nil {
			logger.Error("embedded nats start failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		natsConn, err = embeddedBroker.Connect()
		if err != nil {
			logger.Error("embedded nats connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("discovery stream: embedded NATS server (NATS_URL unset)")
	}
	stream := discovery.NewNATSStream(natsConn)

	queue := discovery.NewQueue(bdb, stream, cfg.DiscoveryRetention, logger)
	pubmedClient := pubmed.New(cfg.PubMedBaseURL, cfg.PubMedAPIKey, logger)
	thresholds := discovery.EvidenceThresholds{Strong: cfg.EvidenceStrong, Moderate: cfg.EvidenceModerate, Low: cfg.EvidenceLow}
	worker := discovery.NewWorker(queue, pubmedClient, embedSvc, store, tiered, thresholds, cfg.WorkerMaxAttempts, time.Second, discovery.WithLogger(logger))

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go func() {
		if err := worker.Run(workerCtx, stream); err != nil {
			logger.Error("discovery worker stopped", slog.String("error", err.Error()))
		}
	}()

	go watchBacklog(workerCtx, queue, cfg.BacklogAlertThreshold, logger)

	ingester := seed.NewIngester(embedSvc, store, tiered, logger)
	if *bootstrap {
		inserted, err := ingester.Bootstrap(context.Background())
		if err != nil {
			logger.Error("bootstrap failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("bootstrap finished", slog.Int("inserted", inserted))
		cancelWorker()
		_ = natsConn.Drain()
		if embeddedBroker != nil {
			embeddedBroker.Shutdown()
		}
		_ = bdb.Close()
		l1.Close()
		return
	}

	orch := orchestrator.New(norm, tiered, store, embedSvc, queue, cfg.CacheTTL, orchestrator.WithMinSimilarity(cfg.SimilarityThreshold), orchestrator.WithLogger(logger))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("suplementia"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	warmupState := httpapi.NewWarmupState()
	handlers := httpapi.NewHandlers(orch, ingester)
	httpapi.RegisterRoutes(v1, handlers, warmupState)
	warmupState.MarkReady()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("listen failed", slog.String("address", cfg.ListenAddr), slog.String("error", err.Error()))
		os.Exit(1)
	}

	go func() {
		logger.Info("suplementia listening", slog.String("address", cfg.ListenAddr))
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down suplementia")

	// Drain sequence: stop accepting, drain in-flight requests up to the
	// request deadline, stop the discovery worker, then close clients in
	// reverse order of construction.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful HTTP shutdown incomplete", slog.String("error", err.Error()))
	}

	cancelWorker()
	_ = natsConn.Drain()
	if embeddedBroker != nil {
		embeddedBroker.Shutdown()
	}
	if err := bdb.Close(); err != nil {
		logger.Warn("badger close failed", slog.String("error", err.Error()))
	}
	l1.Close()
	if err := shutdownTracing(context.Background()); err != nil {
		logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
	}
}
