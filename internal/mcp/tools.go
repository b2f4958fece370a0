package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/searcher"
	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeSymbolNotFound  = -32001 // No symbol matches the given id or name
	ErrorCodeSymbolAmbiguous = -32002 // Multiple symbols match the given name
	ErrorCodeEmptyQuery      = -32003 // Query parameter is empty
)

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	progress, err := s.indexer.Index(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(progressResponse(progress))), nil
}

// handleReindexPaths handles the reindex_paths tool invocation
func (s *Server) handleReindexPaths(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	raw, ok := args["paths"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": "missing or empty",
		})
	}
	paths := make([]string, 0, len(raw))
	for _, v := range raw {
		path, ok := v.(string)
		if !ok || path == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "paths must be non-empty strings", map[string]interface{}{
				"param": "paths",
				"value": v,
			})
		}
		paths = append(paths, path)
	}

	progress, err := s.indexer.ReindexPaths(ctx, paths)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "reindexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(progressResponse(progress))), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := searcher.Mode(getStringDefault(args, "mode", string(searcher.ModeHybrid)))
	switch mode {
	case searcher.ModeHybrid, searcher.ModeVector, searcher.ModeKeyword:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   string(mode),
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	resp, err := s.indexer.Search(ctx, searcher.Request{
		Query:    query,
		Limit:    limit,
		Mode:     mode,
		UseCache: true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		entry := symbolResponse(r.Symbol)
		entry["score"] = r.Score
		entry["rank"] = r.Rank
		results[i] = entry
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":     results,
		"mode":        string(resp.Mode),
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	})), nil
}

// handleGetCallers handles the get_callers tool invocation
func (s *Server) handleGetCallers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleTraversal(ctx, request, graph.TransitiveCallers, "callers")
}

// handleGetCallees handles the get_callees tool invocation
func (s *Server) handleGetCallees(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleTraversal(ctx, request, graph.TransitiveCallees, "callees")
}

type traversalFunc func(context.Context, graph.Store, types.SymbolID, int) ([]graph.Node, error)

func (s *Server) handleTraversal(ctx context.Context, request mcp.CallToolRequest, walk traversalFunc, key string) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sym, mcpErr := s.resolveSymbolArg(ctx, args, "symbol")
	if mcpErr != nil {
		return nil, mcpErr
	}
	maxDepth := getIntDefault(args, "max_depth", 0)

	nodes, err := walk(ctx, s.storage, sym.ID, maxDepth)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "graph traversal failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries := make([]map[string]interface{}, len(nodes))
	for i, node := range nodes {
		entry := symbolResponse(node.Symbol)
		entry["depth"] = node.Depth
		entries[i] = entry
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"symbol": symbolResponse(sym),
		key:      entries,
	})), nil
}

// handleCallPath handles the call_path tool invocation
func (s *Server) handleCallPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	from, mcpErr := s.resolveSymbolArg(ctx, args, "from")
	if mcpErr != nil {
		return nil, mcpErr
	}
	to, mcpErr := s.resolveSymbolArg(ctx, args, "to")
	if mcpErr != nil {
		return nil, mcpErr
	}
	maxDepth := getIntDefault(args, "max_depth", 0)

	path, err := graph.FindCallPath(ctx, s.storage, from.ID, to.ID, maxDepth)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "path search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	steps := make([]map[string]interface{}, len(path))
	for i, sym := range path {
		steps[i] = symbolResponse(sym)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"found": len(path) > 0,
		"hops":  max(len(path)-1, 0),
		"path":  steps,
	})), nil
}

// handleDetectCycles handles the detect_cycles tool invocation
func (s *Server) handleDetectCycles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycles, err := graph.DetectCycles(ctx, s.storage)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "cycle detection failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	formatted := make([][]map[string]interface{}, len(cycles))
	for i, cycle := range cycles {
		members := make([]map[string]interface{}, 0, len(cycle))
		for _, id := range cycle {
			sym, err := s.storage.GetSymbol(ctx, id)
			if err != nil {
				continue
			}
			members = append(members, symbolResponse(sym))
		}
		formatted[i] = members
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cycle_count": len(cycles),
		"cycles":      formatted,
	})), nil
}

// handleSymbolMetrics handles the symbol_metrics tool invocation
func (s *Server) handleSymbolMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sym, mcpErr := s.resolveSymbolArg(ctx, args, "symbol")
	if mcpErr != nil {
		return nil, mcpErr
	}
	maxDepth := getIntDefault(args, "max_depth", 0)

	metrics, err := graph.ComputeMetrics(ctx, s.storage, sym.ID, maxDepth)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "metrics computation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"symbol":             symbolResponse(metrics.Symbol),
		"fan_in":             metrics.FanIn,
		"fan_out":            metrics.FanOut,
		"transitive_callers": metrics.TransitiveCallers,
		"transitive_callees": metrics.TransitiveCallees,
		"references":         metrics.References,
		"is_entry_point":     metrics.IsEntryPoint,
		"is_leaf":            metrics.IsLeaf,
		"in_cycle":           metrics.InCycle,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.indexer.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"root": s.cfg.Root,
		"statistics": map[string]interface{}{
			"files":      status.IndexedFiles,
			"symbols":    status.IndexedSymbols,
			"references": status.IndexedReferences,
			"vectors":    status.IndexedVectors,
		},
		"embedding": map[string]interface{}{
			"provider":   status.EmbeddingProvider,
			"model":      status.EmbeddingModel,
			"dimensions": status.EmbeddingDimensions,
		},
		"storage_bytes": status.StorageBytes,
		"driver":        storage.DriverName,
	}
	if !status.LastIndexed.IsZero() {
		response["last_indexed_at"] = status.LastIndexed.Format("2006-01-02T15:04:05Z07:00")
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// resolveSymbolArg turns a tool argument into a stored symbol. The
// argument may be a symbol id or a name; a name that matches more than
// one symbol is rejected with the candidates listed.
func (s *Server) resolveSymbolArg(ctx context.Context, args map[string]interface{}, key string) (types.Symbol, error) {
	value, ok := args[key].(string)
	if !ok || value == "" {
		return types.Symbol{}, newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}

	if looksLikeSymbolID(value) {
		sym, err := s.storage.GetSymbol(ctx, types.SymbolID(value))
		if err == nil {
			return sym, nil
		}
		if err != storage.ErrNotFound {
			return types.Symbol{}, newMCPError(ErrorCodeInternalError, "symbol lookup failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		// Fall through: a 32-char name is unusual but legal.
	}

	matches, err := s.storage.FindSymbolsByName(ctx, value)
	if err != nil {
		return types.Symbol{}, newMCPError(ErrorCodeInternalError, "symbol lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	switch len(matches) {
	case 0:
		return types.Symbol{}, newMCPError(ErrorCodeSymbolNotFound, "no symbol matches "+value, map[string]interface{}{
			"param": key,
			"value": value,
		})
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = fmt.Sprintf("%s (%s, %s)", m.Qualified, m.Kind, m.FilePath)
		}
		return types.Symbol{}, newMCPError(ErrorCodeSymbolAmbiguous, value+" matches multiple symbols", map[string]interface{}{
			"param":      key,
			"candidates": candidates,
		})
	}
}

// looksLikeSymbolID reports whether a string has the shape of a symbol
// id: exactly 32 lowercase hex characters.
func looksLikeSymbolID(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Response shaping helpers

func symbolResponse(sym types.Symbol) map[string]interface{} {
	entry := map[string]interface{}{
		"id":   string(sym.ID),
		"name": sym.Qualified,
		"kind": string(sym.Kind),
		"file": sym.FilePath,
		"line": sym.Span.Start.Line,
	}
	if sym.Signature != "" {
		entry["signature"] = sym.Signature
	}
	if sym.Doc != "" {
		entry["doc"] = sym.Doc
	}
	return entry
}

func progressResponse(progress *types.IndexProgress) map[string]interface{} {
	response := map[string]interface{}{
		"files_total":     progress.FilesTotal,
		"files_processed": progress.FilesProcessed,
		"files_skipped":   progress.FilesSkipped,
		"symbols_indexed": progress.SymbolsIndexed,
		"duration_ms":     progress.Duration.Milliseconds(),
	}
	if len(progress.Errors) > 0 {
		limit := len(progress.Errors)
		if limit > 5 {
			limit = 5
		}
		errs := make([]map[string]interface{}, limit)
		for i := 0; i < limit; i++ {
			ie := progress.Errors[i]
			errs[i] = map[string]interface{}{
				"path":    ie.Path,
				"stage":   string(ie.Stage),
				"message": ie.Message,
			}
		}
		response["errors"] = errs
		response["error_count"] = len(progress.Errors)
	}
	return response
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
