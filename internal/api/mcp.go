package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Embedder QueryEmbedder
	Vectors  VectorSearcher
	Preview  Previewer
}

// NewMCPServer exposes the knowledge base to MCP clients: semantic
// search, save-by-URL and preview.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"secondbrain",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("secondbrain is a personal knowledge base fed over WhatsApp: saved links, recipes, videos and images with summaries, tags and reminders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_items",
			mcp.WithDescription("Semantically search a user's saved items."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("owner", mcp.Description("Owner user ID"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchItems(deps),
	)

	s.AddTool(
		mcp.NewTool("save_url",
			mcp.WithDescription("Queue a URL for saving into a user's knowledge base, exactly as if it arrived over WhatsApp."),
			mcp.WithString("url", mcp.Description("The URL to save"), mcp.Required()),
			mcp.WithString("owner", mcp.Description("Owner user ID"), mcp.Required()),
			mcp.WithString("note", mcp.Description("Optional note, may contain a reminder phrase like 'tomorrow'")),
		),
		mcpSaveURL(deps),
	)

	s.AddTool(
		mcp.NewTool("preview_url",
			mcp.WithDescription("Extract and analyze a URL without saving it, returning the record a save would produce."),
			mcp.WithString("url", mcp.Description("The URL to preview"), mcp.Required()),
			mcp.WithString("owner", mcp.Description("Optional owner user ID, enables related-item linking")),
		),
		mcpPreviewURL(deps),
	)

	return s
}

func mcpSearchItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		owner, err := req.RequireString("owner")
		if err != nil {
			return mcpError("owner is required"), nil
		}
		limit := req.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}

		vector, err := deps.Embedder.Embed(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("embedding query: %v", err)), nil
		}
		scored, err := deps.Vectors.Search(owner, vector, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("vector search: %v", err)), nil
		}

		ids := make([]string, 0, len(scored))
		for _, s := range scored {
			ids = append(ids, s.ItemID)
		}
		items, err := deps.Store.GetItems(ids)
		if err != nil {
			return mcpError(fmt.Sprintf("loading items: %v", err)), nil
		}

		out, err := json.Marshal(items)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding results: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpSaveURL(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		owner, err := req.RequireString("owner")
		if err != nil {
			return mcpError("owner is required"), nil
		}
		note := req.GetString("note", "")

		if _, err := deps.Store.GetUser(owner); err != nil {
			return mcpError(fmt.Sprintf("unknown owner %q", owner)), nil
		}

		p := storage.PendingItem{
			ID:      uuid.NewString(),
			OwnerID: owner,
			URL:     url,
			RawText: url + " " + note,
		}
		if err := deps.Store.EnqueuePending(p); err != nil {
			return mcpError(fmt.Sprintf("queueing item: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued %s as pending item %s", url, p.ID)), nil
	}
}

func mcpPreviewURL(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		owner := req.GetString("owner", "")

		item := deps.Preview.Preview(ctx, owner, url, "")
		out, err := json.Marshal(item)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding preview: %v", err)), nil
		}
		return mcpText(string(out)), nil
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
