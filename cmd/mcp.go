package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/internal/client"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// mcpCmd exposes the Store over MCP stdio so agent runtimes without a
// native integration can search shared memory and append to chat streams.
func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve Store access as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cs, err := openCoord(cfg)
			if err != nil {
				return err
			}
			cl, err := newStoreClient(cfg, cs)
			if err != nil {
				return err
			}

			s := server.NewMCPServer("onelist", Version, server.WithToolCapabilities(false))
			s.AddTool(searchTool(), searchHandler(cl))
			s.AddTool(appendTool(), appendHandler(cl))
			return server.ServeStdio(s)
		},
	}
}

func searchTool() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription("Search the shared memory Store. Results from the calling agent are excluded by default; titles and snippets only."),
		mcp.WithString("query", mcp.Required(), mcp.Description("free-text search query")),
		mcp.WithString("search_type", mcp.Description("hybrid (default), semantic, keyword, atomic, or memory_hybrid")),
		mcp.WithNumber("limit", mcp.Description("maximum results, default 10")),
	)
}

func searchHandler(cl *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resp, err := cl.Search(ctx, &protocol.SearchRequest{
			Query:      query,
			SearchType: protocol.SearchType(req.GetString("search_type", string(protocol.SearchHybrid))),
			Limit:      req.GetInt("limit", 10),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(resp.Results) == 0 {
			return mcp.NewToolResultText("no results"), nil
		}

		var b strings.Builder
		for i, r := range resp.Results {
			fmt.Fprintf(&b, "%d. %s (relevance %d%%, by %s)\n", i+1, r.Title,
				int(r.Relevance*100), r.Attribution.AgentKind)
			if r.Snippet != "" {
				fmt.Fprintf(&b, "   %s\n", r.Snippet)
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func appendTool() mcp.Tool {
	return mcp.NewTool("memory_append",
		mcp.WithDescription("Append one message to a chat stream in the Store. The session id is a {channel}:{agent}:{principal} key."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("external session key")),
		mcp.WithString("role", mcp.Required(), mcp.Description("user, assistant, system, or tool")),
		mcp.WithString("content", mcp.Required(), mcp.Description("message text")),
	)
}

func appendHandler(cl *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		role, err := req.RequireString("role")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resp, err := cl.AppendChatMessage(ctx, &protocol.AppendRequest{
			SessionID: sessionID,
			Message:   protocol.ChatMessage{Role: role, Content: content},
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("append failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("appended message %s (stream %s, %d messages)",
			resp.MessageID, resp.StreamID, resp.MessageCount)), nil
	}
}
