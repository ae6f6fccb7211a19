package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jstrand/ldgen/internal/pipeline"
	"github.com/jstrand/ldgen/internal/schema"
	"github.com/jstrand/ldgen/internal/store"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *store.Store
	Generator Generator
}

// NewMCPServer registers the schema tools and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"ldgen",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ldgen — generates schema.org JSON-LD structured data for CMS pages."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_schema",
			mcp.WithDescription("Generate (or return cached) schema.org JSON-LD for a page."),
			mcp.WithString("page_id", mcp.Description("ID of the page"), mcp.Required()),
			mcp.WithBoolean("force", mcp.Description("Regenerate even when the cache is current")),
		),
		mcpGenerateSchema(deps),
	)

	s.AddTool(
		mcp.NewTool("schema_status",
			mcp.WithDescription("Report cache status, detected type, and staleness for a page."),
			mcp.WithString("page_id", mcp.Description("ID of the page"), mcp.Required()),
		),
		mcpSchemaStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("validate_schema",
			mcp.WithDescription("Validate raw model output as schema.org JSON-LD and return the canonical JSON."),
			mcp.WithString("text", mcp.Description("Raw text that should contain JSON-LD"), mcp.Required()),
		),
		mcpValidateSchema(),
	)

	s.AddResource(
		mcp.NewResource(
			"pages://recent",
			"Recent Pages",
			mcp.WithResourceDescription("Last 10 synced pages (titles and IDs)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentPages(deps),
	)

	return s
}

func mcpGenerateSchema(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageID, err := req.RequireString("page_id")
		if err != nil {
			return mcpError("page_id is required"), nil
		}
		force := req.GetBool("force", false)

		res, err := deps.Generator.Generate(ctx, pageID, pipeline.Options{Force: force})
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		b, err := json.Marshal(generateResponse(res))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		if res.Outcome == pipeline.OutcomeError {
			return mcpError(string(b)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSchemaStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageID, err := req.RequireString("page_id")
		if err != nil {
			return mcpError("page_id is required"), nil
		}

		status, err := deps.Generator.Status(ctx, pageID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get status: %v", err)), nil
		}

		b, err := json.Marshal(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpValidateSchema() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		res, err := schema.Validate(text)
		if err != nil {
			return mcpError(fmt.Sprintf("validation failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{"type": res.Type, "schema": res.JSON})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentPages(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		pages, err := deps.Store.ListPages(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list pages: %w", err)
		}

		type pageSummary struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			Type       string `json:"type"`
			ModifiedAt string `json:"modified_at"`
		}

		summaries := make([]pageSummary, len(pages))
		for i, p := range pages {
			title := p.Title
			if utf8.RuneCountInString(title) > 200 {
				runes := []rune(title)
				title = string(runes[:200]) + "..."
			}
			summaries[i] = pageSummary{
				ID:         p.ID,
				Title:      title,
				Type:       p.Type,
				ModifiedAt: p.ModifiedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pages: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
