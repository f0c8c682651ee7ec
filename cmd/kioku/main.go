// Package main is the Kioku CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hyperjump/kioku/internal/cli"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/engine"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/query"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/watcher"
	"github.com/hyperjump/kioku/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kioku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
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
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "index":
		runIndex()
	case "query":
		runQuery()
	case "get":
		runGet()
	case "list":
		runList()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("kioku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// newEmbedder returns the ONNX embedder when a model is configured and
// loadable, otherwise the deterministic mock embedder.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	if cfg.Embedding.ModelPath != "" {
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err == nil {
			return onnxEmbedder
		}
		logger.Warn("ONNX embedder unavailable, using mock embedder",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err),
		)
	}
	return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
}

// openEngine loads config, builds the logger and embedder, and opens the
// engine. The caller must Close the engine.
func openEngine(configPath string, debug bool) (*engine.Engine, *config.Config, *zap.Logger) {
	cfg, resolvedPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))

	var opts []engine.Option
	if debugMode {
		opts = append(opts, engine.WithLogger(logger))
	}
	eng, err := engine.New(cfg, newEmbedder(cfg, logger), opts...)
	if err != nil {
		logger.Fatal("Failed to open engine", zap.Error(err))
	}
	return eng, cfg, logger
}

func parseOutputFormat(s string) cli.OutputFormat {
	switch s {
	case "json":
		return cli.OutputJSON
	case "text":
		return cli.OutputText
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", s)
		os.Exit(1)
		return cli.OutputText
	}
}

// indexFile replaces any earlier documents indexed from the same path, then
// indexes the current contents.
func indexFile(ctx context.Context, eng *engine.Engine, path string, typ models.DocumentType) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := eng.DeleteBySource(ctx, abs); err != nil {
		return "", err
	}
	return eng.IndexDocument(ctx, abs, typ)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	typeFlag := fs.String("type", "auto", "document type: auto, text, pdf, image, or audio")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kioku index [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	typ := models.DocumentType(*typeFlag)
	if !typ.Valid() {
		fmt.Fprintf(os.Stderr, "Unknown document type %q; use auto, text, pdf, image, or audio\n", *typeFlag)
		os.Exit(1)
	}

	eng, cfg, logger := openEngine(*configPath, *debug)
	defer logger.Sync()
	defer eng.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := indexDirectory(ctx, eng, path, cfg.Watch.Extensions, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Indexing directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d file(s) from %s\n", n, path)
		return
	}

	docID, err := indexFile(ctx, eng, path, typ)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document indexed: %s\n", docID)
}

func indexDirectory(ctx context.Context, eng *engine.Engine, root string, extensions []string, logger *zap.Logger) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if !matchExtension(path, extensions) {
			return nil
		}
		if _, err := indexFile(ctx, eng, path, models.TypeAuto); err != nil {
			logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		count++
		return nil
	})
	return count, err
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topK := fs.Int("top-k", 0, "number of results (0 = config default)")
	docType := fs.String("type", "", "restrict results to a document type: text, pdf, image, audio")
	fusion := fs.Bool("fusion", false, "retrieve with query rephrasings and fuse the results")
	compose := fs.Bool("compose", false, "print the retrieved chunks as one attributed context block")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kioku query [flags] <text>")
		os.Exit(1)
	}
	// Join positional args so multi-word queries work without quoting.
	queryText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	format := parseOutputFormat(*outputFormat)

	var queryOpts []query.QueryOption
	if *docType != "" {
		queryOpts = append(queryOpts, query.WithTypeFilter(models.DocumentType(*docType)))
	}
	if *fusion {
		queryOpts = append(queryOpts, query.WithFusion())
	}

	eng, _, logger := openEngine(*configPath, *debug)
	defer logger.Sync()
	defer eng.Close()

	response, err := eng.Query(context.Background(), queryText, *topK, queryOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if *compose {
		fmt.Println(query.ComposeContext(response.Results, 0))
		return
	}
	if err := cli.WriteQueryResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runGet() {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kioku get [flags] <document-id>")
		os.Exit(1)
	}
	format := parseOutputFormat(*outputFormat)

	eng, _, logger := openEngine(*configPath, false)
	defer logger.Sync()
	defer eng.Close()

	doc, err := eng.GetDocument(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Get failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, []*models.Document{doc}, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	offset := fs.Int("offset", 0, "pagination offset")
	limit := fs.Int("limit", 50, "maximum documents to list")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := parseOutputFormat(*outputFormat)

	eng, _, logger := openEngine(*configPath, false)
	defer logger.Sync()
	defer eng.Close()

	docs, err := eng.ListDocuments(context.Background(), *offset, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.String("source", "", "delete every document indexed from this path instead of by id")
	_ = fs.Parse(os.Args[2:])

	if *source == "" && fs.NArg() < 1 {
		fmt.Println("Usage: kioku delete [flags] <document-id>")
		fmt.Println("       kioku delete --source <path>")
		os.Exit(1)
	}

	eng, _, logger := openEngine(*configPath, false)
	defer logger.Sync()
	defer eng.Close()
	ctx := context.Background()

	if *source != "" {
		abs, err := filepath.Abs(*source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Bad source path: %v\n", err)
			os.Exit(1)
		}
		n, err := eng.DeleteBySource(ctx, abs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d document(s) from %s\n", n, abs)
		return
	}

	docID := fs.Arg(0)
	existed, err := eng.DeleteDocument(ctx, docID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	if !existed {
		fmt.Printf("Document not found: %s\n", docID)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// statusResponse is the shape of `kioku status --output json`.
type statusResponse struct {
	Documents      int64            `json:"documents"`
	Chunks         int64            `json:"chunks"`
	ByType         map[string]int64 `json:"by_type,omitempty"`
	DiskUsageBytes *int64           `json:"disk_usage_bytes,omitempty"`
	Dimensions     int              `json:"embedding_dimensions"`
	ChunkSize      int              `json:"chunk_size"`
	DatabasePath   string           `json:"database_path"`
	SnapshotPath   string           `json:"vector_index_path"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	eng, cfg, logger := openEngine(*configPath, false)
	defer logger.Sync()
	defer eng.Close()

	stats, err := eng.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	status := statusResponse{
		Documents:    stats.TotalDocuments,
		Chunks:       stats.TotalChunks,
		ByType:       stats.ByType,
		Dimensions:   cfg.Embedding.Dimensions,
		ChunkSize:    cfg.Chunking.ChunkSize,
		DatabasePath: cfg.Storage.DatabasePath,
		SnapshotPath: cfg.Storage.VectorIndexPath,
	}
	if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath); err == nil {
		status.DiskUsageBytes = &diskBytes
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
		fmt.Printf("documents:          %d\n", status.Documents)
		fmt.Printf("chunks:             %d\n", status.Chunks)
		for typ, n := range status.ByType {
			fmt.Printf("  %-17s %d\n", typ+":", n)
		}
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
		}
		fmt.Println()
		fmt.Printf("embedding_dims:     %d\n", status.Dimensions)
		fmt.Printf("chunk_size:         %d\n", status.ChunkSize)
		fmt.Printf("database_path:      %s\n", status.DatabasePath)
		fmt.Printf("vector_index_path:  %s\n", status.SnapshotPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	eng, cfg, logger := openEngine(*configPath, *debug)
	defer logger.Sync()
	defer eng.Close()

	if len(cfg.Watch.Directories) == 0 {
		fmt.Println("No watch directories configured; set watch.directories in config.yaml")
		os.Exit(1)
	}

	var watchOpts []watcher.Option
	if cfg.Debug || *debug {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	w := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := indexFile(context.Background(), eng, path, models.TypeAuto); err != nil {
				logger.Warn("watch index failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return
			}
			if _, err := eng.DeleteBySource(context.Background(), abs); err != nil {
				logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()
	w.SyncExistingFiles()

	logger.Info("watching", zap.Strings("directories", w.Directories()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")
}

func printUsage() {
	fmt.Println(`kioku - Local semantic memory for your documents

Usage:
  kioku index [flags] <file-or-dir>   Index a document or directory
  kioku query [flags] <text>          Query indexed documents
  kioku get [flags] <id>              Show a document record
  kioku list [flags]                  List indexed documents
  kioku delete [flags] <id>           Delete a document
  kioku status [flags]                Show corpus and storage status
  kioku watch [flags]                 Watch configured directories and keep the index in sync
  kioku version                       Show version
  kioku help                          Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kioku/config.yaml,
                     falling back to ./config.yaml when present)
  --output string    Output format: text or json (default: text)
  --debug            Enable debug logging

Index Flags:
  --type string      Document type: auto, text, pdf, image, or audio (default: auto)

Query Flags:
  --top-k int        Number of results (default from config)
  --type string      Restrict results to a document type: text, pdf, image, or audio
  --fusion           Retrieve with query rephrasings and fuse the results
  --compose          Print the retrieved chunks as one attributed context block

Delete Flags:
  --source string    Delete every document indexed from this path

Examples:
  kioku index notes.md
  kioku index --type pdf report.pdf
  kioku index ~/Documents/notes
  kioku query how do I rotate the api key
  kioku query --top-k 3 --output json "vector search"
  kioku query --type pdf --compose quarterly revenue
  kioku delete 5f4dcc3b-aa12-4e9d-9f21-3c2b7a1d8e90
  kioku delete --source ~/Documents/notes/old.md
  kioku status --output json
  kioku watch --debug`)
}
