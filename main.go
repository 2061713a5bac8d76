package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/learntrac/backend/api"
	"github.com/learntrac/backend/chunking"
	"github.com/learntrac/backend/config"
	"github.com/learntrac/backend/database"
	"github.com/learntrac/backend/embeddings"
	"github.com/learntrac/backend/graph"
	"github.com/learntrac/backend/ingestion"
	"github.com/learntrac/backend/relational"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// ingestCmd runs the PDF ingestion pipeline over a directory of textbooks,
// wiring structure detection, chunking, embedding and the graph/relational
// stores together outside the HTTP surface.
func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "path to directory containing textbook PDFs")
	subject := flags.String("subject", "", "subject tag applied to every ingested textbook")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	if err := relational.EnsureSchema(ctx, pgPool, cfg.Embeddings.Dimension); err != nil {
		logger.Fatalf("ensure relational schema: %v", err)
	}

	neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer neo4jDriver.Close(ctx)

	graphStore := graph.NewStore(neo4jDriver, cfg.Embeddings.Dimension)
	if err := graphStore.EnsureIndexes(ctx); err != nil {
		logger.Fatalf("ensure graph indexes: %v", err)
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	controller := chunking.NewController(cfg)
	relStore := relational.NewStore(pgPool)
	svc := ingestion.NewService(controller, embedder, graphStore, relStore, logger)

	logger.Printf("ingesting PDFs from %s using %s/%s embeddings", *dataDir, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	if err := svc.IngestDirectory(ctx, *dataDir, *subject); err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to bind the HTTP API server")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server, cleanup, err := api.New(cfg, logger)
	if err != nil {
		logger.Fatalf("initialize server: %v", err)
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP API listening on %s", *addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("graceful shutdown failed: %v", err)
		}
		<-errCh
		logger.Println("HTTP API stopped")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server error: %v", err)
		}
	}
}

func printUsage() {
	fmt.Println("Usage: learntrac-backend <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Ingest textbook PDFs into Postgres/Neo4j (use --dir and --subject)")
	fmt.Println("  serve    Start the HTTP API exposing vector search, question generation, learning paths and evaluation")
}
