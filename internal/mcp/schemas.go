package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexProjectTool returns the tool definition for index_project
func indexProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_project",
		Description: "Scan the project and bring the index up to date. Unchanged files are skipped by content hash.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// reindexPathsTool returns the tool definition for reindex_paths
func reindexPathsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex_paths",
		Description: "Reindex specific files by project-relative path. Paths that no longer exist are removed from the index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "Project-relative file paths to reindex",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"paths"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed symbols with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (FTS only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
			},
			Required: []string{"query"},
		},
	}
}

// symbolArgument is the shared schema for tools addressed by symbol.
// Either a 32-hex symbol id or a name resolvable by lookup.
func symbolArgument(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// getCallersTool returns the tool definition for get_callers
func getCallersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_callers",
		Description: "List symbols that call the given symbol, transitively up to max_depth",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbol":    symbolArgument("Symbol id or name to find callers of"),
				"max_depth": depthArgument(),
			},
			Required: []string{"symbol"},
		},
	}
}

// getCalleesTool returns the tool definition for get_callees
func getCalleesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_callees",
		Description: "List symbols the given symbol calls, transitively up to max_depth",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbol":    symbolArgument("Symbol id or name to find callees of"),
				"max_depth": depthArgument(),
			},
			Required: []string{"symbol"},
		},
	}
}

// callPathTool returns the tool definition for call_path
func callPathTool() mcp.Tool {
	return mcp.Tool{
		Name:        "call_path",
		Description: "Find a shortest chain of calls connecting two symbols",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"from":      symbolArgument("Symbol id or name the path starts from"),
				"to":        symbolArgument("Symbol id or name the path must reach"),
				"max_depth": depthArgument(),
			},
			Required: []string{"from", "to"},
		},
	}
}

// detectCyclesTool returns the tool definition for detect_cycles
func detectCyclesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "detect_cycles",
		Description: "Report call cycles in the indexed call graph",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// symbolMetricsTool returns the tool definition for symbol_metrics
func symbolMetricsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "symbol_metrics",
		Description: "Fan-in, fan-out, transitive reach, reference count, and cycle membership for one symbol",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbol":    symbolArgument("Symbol id or name to compute metrics for"),
				"max_depth": depthArgument(),
			},
			Required: []string{"symbol"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query index statistics: file, symbol, reference, and vector counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func depthArgument() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of call edges to follow (0 = unlimited)",
		"default":     0,
		"minimum":     0,
	}
}
