package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sverka/internal/pipeline"
)

// NewMCPServer creates an MCP server exposing verification, remark
// clustering and classification as tools.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sverka",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("sverka verifies checklist criteria against project documents and structures inspection remarks."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("verify_criterion",
			mcp.WithDescription("Verify one checklist criterion against the documents of a project and return a verdict with sources."),
			mcp.WithString("project", mcp.Description("Project name; its index is reused across calls"), mcp.Required()),
			mcp.WithString("docs_dir", mcp.Description("Folder holding the project documents"), mcp.Required()),
			mcp.WithString("criterion", mcp.Description("Checklist criterion to verify"), mcp.Required()),
		),
		mcpVerifyCriterion(deps),
	)

	s.AddTool(
		mcp.NewTool("cluster_remarks",
			mcp.WithDescription("Cluster near-duplicate remarks, synthesize one remark per cluster and classify every group."),
			mcp.WithString("batch", mcp.Description(`JSON object {"remarks": {"<category>": ["text", ...]}, "categories": ["name", ...]}`), mcp.Required()),
		),
		mcpClusterRemarks(deps),
	)

	s.AddTool(
		mcp.NewTool("classify_text",
			mcp.WithDescription("Assign a text a major category and a sub-category from the taxonomy, coining a sub-category when none fits."),
			mcp.WithString("text", mcp.Description("Text to classify"), mcp.Required()),
		),
		mcpClassifyText(deps),
	)

	return s
}

func mcpVerifyCriterion(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project, err := req.RequireString("project")
		if err != nil {
			return mcpError("project is required"), nil
		}
		docsDir, err := req.RequireString("docs_dir")
		if err != nil {
			return mcpError("docs_dir is required"), nil
		}
		criterion, err := req.RequireString("criterion")
		if err != nil {
			return mcpError("criterion is required"), nil
		}

		report, err := deps.Checklist.Run(ctx, pipeline.Project{
			Name:     project,
			DocsDir:  docsDir,
			Criteria: nonBlank([]string{criterion}),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("verification failed: %v", err)), nil
		}
		return mcpJSON(report.Entries[0].Verdict)
	}
}

func mcpClusterRemarks(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("batch")
		if err != nil {
			return mcpError("batch is required"), nil
		}
		var b pipeline.Batch
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return mcpError(fmt.Sprintf("invalid batch JSON: %v", err)), nil
		}
		if len(b.Remarks) == 0 {
			return mcpError("batch has no remarks"), nil
		}

		report, err := deps.Remarks.Run(ctx, b)
		if err != nil {
			return mcpError(fmt.Sprintf("remark batch failed: %v", err)), nil
		}
		return mcpJSON(report)
	}
}

func mcpClassifyText(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		a, err := deps.Remarks.Classify(ctx, text)
		if err != nil {
			return mcpError(fmt.Sprintf("classification failed: %v", err)), nil
		}
		return mcpJSON(classifyResponse{Major: a.Major, Sub: a.Sub, Category: a.Key()})
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
