package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/embedder"
	"github.com/codeatlas/codeatlas/internal/indexer"
	"github.com/codeatlas/codeatlas/internal/logger"
	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/internal/vecindex"
)

const (
	// ServerName is the MCP server name
	ServerName = "codeatlas"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with one project's index.
type Server struct {
	mcp     *server.MCPServer
	cfg     *config.Config
	storage storage.Storage
	indexer *indexer.Indexer
	watch   bool
}

// NewServer opens the project's index under .codeatlas/ and wires the
// tool handlers. watch enables background reindexing on file changes.
func NewServer(cfg *config.Config, watch bool) (*Server, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create data directories: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectors, err := vecindex.Open(cfg.VectorPath(), emb.Dimension())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		cfg:     cfg,
		storage: store,
		indexer: indexer.New(cfg, store, emb, vectors),
		watch:   watch,
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()

	log := logger.ForComponent("mcp")
	log.Info("serving", "name", ServerName, "version", ServerVersion,
		"root", s.cfg.Root, "driver", storage.DriverName)

	if s.watch && s.cfg.Watcher.Enabled {
		go func() {
			if err := s.indexer.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Warn("watcher stopped", "error", err)
			}
		}()
	}
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(reindexPathsTool(), s.handleReindexPaths)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getCallersTool(), s.handleGetCallers)
	s.mcp.AddTool(getCalleesTool(), s.handleGetCallees)
	s.mcp.AddTool(callPathTool(), s.handleCallPath)
	s.mcp.AddTool(detectCyclesTool(), s.handleDetectCycles)
	s.mcp.AddTool(symbolMetricsTool(), s.handleSymbolMetrics)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
