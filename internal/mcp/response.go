package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// createJSONResponse creates a standardized JSON response for MCP tools.
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createSmartErrorResponse creates an error response enriched with
// context-aware suggestions for recovering from common mistakes.
func createSmartErrorResponse(operation string, err error, context map[string]interface{}) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}

	if suggestions := errorSuggestions(operation, err); len(suggestions) > 0 {
		errorData["suggestions"] = suggestions
	}
	if help := operationHelp(operation); help != "" {
		errorData["help"] = help
	}
	if len(context) > 0 {
		errorData["context"] = context
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}

	// Errors that originate from the tool are reported inside the result
	// with isError set, not as a protocol-level error, so the client can
	// see what went wrong and self-correct.
	response.IsError = true

	return response, nil
}

// errorSuggestions maps common failure modes to recovery hints.
func errorSuggestions(operation string, err error) []string {
	var suggestions []string
	msg := err.Error()

	switch operation {
	case "lookup":
		if strings.Contains(msg, "query is blank") {
			suggestions = append(suggestions,
				"Provide an emergency type such as 'fire', 'hypoxia' or 'flooding'",
				"Use list_categories to see the top-level emergency categories")
		}
	case "get_procedure":
		if strings.Contains(msg, "no procedure with id") {
			suggestions = append(suggestions,
				"Procedure ids come from lookup results (e.g. \"medical-support.hypoxia-response\")",
				"Use lookup to find procedures by emergency type, or list_categories for the tree roots")
		}
	case "reload":
		if strings.Contains(msg, "duplicate_identifier") {
			suggestions = append(suggestions,
				"Two manual headings produce the same procedure id; rename one heading")
		}
		if strings.Contains(msg, "malformed") {
			suggestions = append(suggestions,
				"Fix the reported manual file, then run reload again",
				"The previous manual set keeps serving until a reload succeeds")
		}
	}

	if strings.Contains(msg, "not loaded") {
		suggestions = append(suggestions,
			"Run the reload tool after fixing the manual sources",
			"Check stats to see the current store state")
	}

	return suggestions
}

// operationHelp provides a one-line description per tool.
func operationHelp(operation string) string {
	helpMap := map[string]string{
		"lookup":          "Look up emergency procedures by type. Matching is layered: exact title, then keywords, then fuzzy.",
		"get_procedure":   "Fetch one procedure by its exact id, optionally with its direct children.",
		"list_categories": "List the top-level emergency categories in authored order.",
		"reload":          "Rebuild the procedure store from the manual sources and swap it in atomically.",
		"stats":           "Report store, cache and query statistics.",
		"info":            "Describe the available tools and their parameters.",
	}
	return helpMap[operation]
}
