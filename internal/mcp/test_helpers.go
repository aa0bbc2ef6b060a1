package mcp

// In-process tool invocation for tests. CallTool dispatches directly to
// the handlers, bypassing the stdio transport: fast, synchronous, and
// with real stack traces when something breaks.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CallTool simulates an MCP tool call and returns the response text.
// Tool-level errors (isError responses) come back as Go errors so tests
// can assert on them directly.
func (s *Server) CallTool(toolName string, params map[string]interface{}) (string, error) {
	ctx := context.Background()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      toolName,
			Arguments: paramsJSON,
		},
	}

	var result *mcp.CallToolResult

	switch toolName {
	case "lookup":
		result, err = s.handleLookup(ctx, req)
	case "get_procedure":
		result, err = s.handleGetProcedure(ctx, req)
	case "list_categories":
		result, err = s.handleListCategories(ctx, req)
	case "reload":
		result, err = s.handleReload(ctx, req)
	case "stats":
		result, err = s.handleStats(ctx, req)
	case "info":
		result, err = s.handleInfo(ctx, req)
	default:
		return "", fmt.Errorf("unknown tool: %s", toolName)
	}

	if err != nil {
		return "", err
	}

	if result == nil || len(result.Content) == 0 {
		return "", nil
	}
	textContent, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return "", fmt.Errorf("unexpected content type %T", result.Content[0])
	}

	if result.IsError {
		var response map[string]interface{}
		if json.Unmarshal([]byte(textContent.Text), &response) == nil {
			if errorMsg, ok := response["error"].(string); ok {
				return "", fmt.Errorf("tool error: %s", errorMsg)
			}
		}
		return "", fmt.Errorf("tool error: %s", textContent.Text)
	}

	return textContent.Text, nil
}
