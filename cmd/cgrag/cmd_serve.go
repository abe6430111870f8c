// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/cgrag/pkg/logging"
	"github.com/AleutianAI/cgrag/services/cgrag"
	"github.com/AleutianAI/cgrag/services/cgrag/graph"
	"github.com/AleutianAI/cgrag/services/cgrag/retrieval"
	badgerstore "github.com/AleutianAI/cgrag/services/cgrag/storage/badger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cgrag HTTP server",
	Long: `Starts the code-graph retrieval service. Snapshots are rebuilt on
demand via POST /v1/cgrag/build and optionally restored from the badger
archive at startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// unavailableSearcher stands in when no vector database is configured,
// so builds and dead-code analysis keep working.
type unavailableSearcher struct{}

func (unavailableSearcher) Search(ctx context.Context, embedding []float32, limit int) ([]retrieval.SearchResult, error) {
	return nil, fmt.Errorf("vector search not configured: set weaviate_url")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.LogLevel),
		LogDir:  config.LogDir,
		Service: "cgrag",
		JSON:    !config.Debug,
	})
	defer logger.Close()
	slogger := logger.Slog()

	tracerCleanup, err := initTracer(config.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer tracerCleanup(context.Background())

	// Vector search backend.
	var searcher retrieval.VectorSearcher = unavailableSearcher{}
	if config.WeaviateURL != "" {
		parsed, err := url.Parse(config.WeaviateURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid weaviate URL: %s", config.WeaviateURL)
		}
		client, err := weaviate.NewClient(weaviate.Config{
			Host:   parsed.Host,
			Scheme: parsed.Scheme,
		})
		if err != nil {
			return fmt.Errorf("create weaviate client: %w", err)
		}
		var searchOpts []retrieval.WeaviateSearcherOption
		if config.SymbolClass != "" {
			searchOpts = append(searchOpts, retrieval.WithClassName(config.SymbolClass))
		}
		searchOpts = append(searchOpts, retrieval.WithSearchLogger(slogger))
		searcher = retrieval.NewWeaviateSearcher(client, searchOpts...)
		slogger.Info("weaviate client initialized", "url", config.WeaviateURL)
	} else {
		slogger.Warn("weaviate URL not configured, retrieval disabled")
	}

	embedder := retrieval.NewOpenAIEmbedder(
		os.Getenv("OPENAI_API_KEY"), config.OpenAIBaseURL, config.EmbeddingModel)

	// Snapshot store, optionally backed by the badger archive.
	storeOpts := []graph.StoreOption{graph.WithStoreLogger(slogger)}
	var archive *badgerstore.Archive
	if config.ArchivePath != "" {
		archive, err = badgerstore.OpenArchive(badgerstore.DefaultConfig(config.ArchivePath))
		if err != nil {
			return fmt.Errorf("open snapshot archive: %w", err)
		}
		defer archive.Close()
		storeOpts = append(storeOpts, graph.WithArchiver(archive))
	}
	store := graph.NewStore(graph.NewBuilder(graph.WithBuildLogger(slogger)), storeOpts...)

	engineOpts := []retrieval.EngineOption{retrieval.WithEngineLogger(slogger)}
	if config.SourceRoot != "" {
		engineOpts = append(engineOpts, retrieval.WithContextBuilder(
			retrieval.NewContextBuilder(
				retrieval.WithSourceReader(cgrag.NewFileSourceReader(config.SourceRoot)),
				retrieval.WithContextLogger(slogger))))
	}
	engine := retrieval.NewEngine(store, searcher, embedder, engineOpts...)

	svcConfig := cgrag.DefaultServiceConfig()
	svcConfig.AllowedRoots = config.AllowedRoots
	svcConfig.PatternConfigPath = config.PatternConfig

	svcOpts := []cgrag.ServiceOption{
		cgrag.WithServiceLogger(slogger),
		cgrag.WithServiceEmbedder(embedder),
	}
	if archive != nil {
		svcOpts = append(svcOpts, cgrag.WithRestoreArchive(archive))
	}
	svc, err := cgrag.NewService(svcConfig, store, engine, svcOpts...)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	for _, repo := range config.Restore {
		if err := svc.RestoreRepository(cmd.Context(), repo); err != nil {
			slogger.Warn("snapshot restore failed", "repository", repo, "error", err)
		}
	}

	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware("cgrag-service"))
	if config.RateLimitRPS > 0 {
		router.Use(cgrag.RateLimit(config.RateLimitRPS, config.RateLimitBurst))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	cgrag.RegisterRoutes(router.Group("/v1"), cgrag.NewHandlers(svc, slogger))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slogger.Info("shutting down cgrag server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slogger.Error("server shutdown error", "error", err)
		}
	}()

	slogger.Info("starting cgrag server", "port", config.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
