// Package main is the Finbot CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/finbot/finbot/internal/config"
	"github.com/finbot/finbot/internal/embedding"
	"github.com/finbot/finbot/internal/guardrail"
	"github.com/finbot/finbot/internal/ingest"
	"github.com/finbot/finbot/internal/llm"
	"github.com/finbot/finbot/internal/models"
	"github.com/finbot/finbot/internal/retrieval"
	"github.com/finbot/finbot/internal/server"
	"github.com/finbot/finbot/internal/storage"
	"github.com/finbot/finbot/internal/vector"
	"github.com/finbot/finbot/internal/watcher"
	"github.com/finbot/finbot/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/finbot/config.yaml"
	defaultServerURL  = "http://localhost:5014"
	mockDimensions    = 384
)

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "query":
		runQuery()
	case "ingest":
		runIngest()
	case "rebuild":
		runRebuild()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("finbot version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: finbot <command> [flags]

Commands:
  server    Start the HTTP API server
  query     Ask a question (via running server, or directly with -server="")
  ingest    Ingest a file or directory into the index
  rebuild   Re-embed all registered passages into a fresh index
  status    Show index and session statistics
  version   Print version
  help      Show this help`)
}

// Components bundles the wired pipeline for direct (non-HTTP) commands.
type Components struct {
	Registry     *storage.Registry
	Store        *vector.Store
	Embedder     embedding.Embedder
	Generator    llm.Generator
	Collector    *retrieval.Collector
	Orchestrator *retrieval.Orchestrator
	Ingestor     *ingest.Ingestor
}

// Close releases storage and embedder resources.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	registry, err := storage.NewRegistry(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	var embedder embedding.Embedder
	serviceEmbedder, err := embedding.NewServiceEmbedder(&cfg.Embedding)
	if err != nil {
		logger.Warn("embedding service unavailable, using mock embedder", zap.Error(err))
		embedder = embedding.NewMockEmbedder(mockDimensions)
	} else {
		embedder = serviceEmbedder
	}

	store := vector.NewStore(embedder, cfg.Storage.VectorStoreDir, logger)

	generator, err := llm.NewGenerator(cfg.LLM)
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("failed to initialize llm backend: %w", err)
	}

	classifier := guardrail.NewClassifier(cfg.Guardrail.JailbreakPhrases, cfg.Guardrail.DomainTerms)
	collector := retrieval.NewCollector()
	chunker := ingest.NewChunker(cfg.Chunking.MinChunkSize, cfg.Chunking.MaxChunkSize, cfg.Chunking.OverlapSize)

	return &Components{
		Registry:     registry,
		Store:        store,
		Embedder:     embedder,
		Generator:    generator,
		Collector:    collector,
		Orchestrator: retrieval.NewOrchestrator(classifier, store, generator, collector, cfg.Retrieval.TopK, cfg.Retrieval.MaxTopK, logger),
		Ingestor:     ingest.NewIngestor(chunker, registry, store, logger),
	}, nil
}

// loadOrRebuildIndex loads the persisted vector index, falling back to a
// rebuild from the registry when the companion files are missing or corrupt.
func loadOrRebuildIndex(ctx context.Context, c *Components, logger *zap.Logger) error {
	if c.Store.Load() {
		logger.Info("vector index loaded",
			zap.Int("passages", c.Store.Size()),
			zap.Int("dimensions", c.Store.Dimensions()))
		return nil
	}
	n, err := c.Ingestor.Rebuild(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("vector index rebuilt from registry", zap.Int("passages", n))
	}
	return nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if err := loadOrRebuildIndex(ctx, components, logger); err != nil {
		logger.Fatal("Failed to prepare vector index", zap.Error(err))
	}

	// Pick up any data files dropped in while the server was down.
	if _, err := components.Ingestor.IngestDirectory(ctx, cfg.Storage.DataDir); err != nil {
		logger.Warn("data directory sync failed", zap.Error(err))
	}

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Server.WatchDataDir {
		ingestor := components.Ingestor
		watchSvc = watcher.New(cfg.Storage.DataDir, func(path string) {
			if _, err := ingestor.IngestFile(context.Background(), path); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		}, logger)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Ingestor,
		components.Registry,
		components.Store,
		components.Collector,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	if err := components.Store.Save(); err != nil {
		logger.Warn("vector index save failed", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer directly without a server)")
	k := fs.Int("k", 0, "number of passages to retrieve (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: finbot query [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("Usage: finbot query [flags] <question>")
		os.Exit(1)
	}

	req := models.QueryRequest{Query: question, K: *k}

	var resp *models.QueryResponse
	if *serverURL != "" {
		resp2, err := queryViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		resp = resp2
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()

		ctx := context.Background()
		if err := loadOrRebuildIndex(ctx, components, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to prepare vector index: %v\n", err)
			os.Exit(1)
		}
		resp, err = components.Orchestrator.Answer(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Println(resp.Response)
		if len(resp.Sources) > 0 {
			fmt.Printf("\nSources: %s\n", strings.Join(resp.Sources, ", "))
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func queryViaHTTP(serverURL string, req models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: finbot ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	if err := loadOrRebuildIndex(ctx, components, logger); err != nil {
		fmt.Printf("Failed to prepare vector index: %v\n", err)
		os.Exit(1)
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Cannot access %s: %v\n", path, err)
		os.Exit(1)
	}

	if info.IsDir() {
		results, err := components.Ingestor.IngestDirectory(ctx, path)
		if err != nil {
			fmt.Printf("Ingest failed: %v\n", err)
			os.Exit(1)
		}
		var indexed, skipped int
		for _, r := range results {
			if r.Skipped {
				skipped++
				continue
			}
			indexed += r.IndexedChunks
		}
		fmt.Printf("Ingested %d files (%d skipped), %d passages indexed\n",
			len(results)-skipped, skipped, indexed)
		return
	}

	result, err := components.Ingestor.IngestFile(ctx, path)
	if err != nil {
		fmt.Printf("Ingest failed: %v\n", err)
		os.Exit(1)
	}
	if result.Skipped {
		fmt.Printf("%s unchanged, skipped\n", result.Source)
		return
	}
	fmt.Printf("%s: %d records, %d passages indexed\n",
		result.Source, result.TotalRecords, result.IndexedChunks)
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	n, err := components.Ingestor.Rebuild(context.Background())
	if err != nil {
		fmt.Printf("Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rebuilt vector index with %d passages\n", n)
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Passages        int64                  `json:"passages"`
	Files           int64                  `json:"files"`
	VectorIndexSize int                    `json:"vector_index_size"`
	Dimensions      int                    `json:"dimensions"`
	Session         *models.SessionStats   `json:"session,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()

		ctx := context.Background()
		if err := loadOrRebuildIndex(ctx, components, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to prepare vector index: %v\n", err)
			os.Exit(1)
		}
		passages, err := components.Registry.CountPassages(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count passages failed: %v\n", err)
			os.Exit(1)
		}
		files, err := components.Registry.CountFiles(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count files failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Passages:        passages,
			Files:           files,
			VectorIndexSize: components.Store.Size(),
			Dimensions:      components.Store.Dimensions(),
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("passages:           %d\n", status.Passages)
		fmt.Printf("files:              %d\n", status.Files)
		fmt.Printf("vector_index_size:  %d\n", status.VectorIndexSize)
		fmt.Printf("dimensions:         %d\n", status.Dimensions)
		if status.Session != nil {
			fmt.Printf("total_queries:      %d\n", status.Session.TotalQueries)
			fmt.Printf("jailbreak_attempts: %d\n", status.Session.JailbreakAttempts)
			fmt.Printf("out_of_domain:      %d\n", status.Session.OutOfDomainQueries)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}
