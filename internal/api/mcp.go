package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/contrarian/internal/jobs"
)

// MCPDeps holds dependencies for the MCP server. It shares the registry and
// runner with the HTTP API so jobs started over either surface are visible
// on both.
type MCPDeps struct {
	Registry  *jobs.Registry
	Runner    JobRunner
	Retriever ContextRetriever
	Generator Generator
	TopK      int
}

// NewMCPServer creates an MCP server exposing the analysis pipeline as
// tools. analyze_report takes a path to a report already on disk since MCP
// clients cannot upload files.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"contrarian",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("contrarian turns a financial report plus live news into a structured investment signal."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_report",
			mcp.WithDescription("Start an analysis job for a company from a financial report file on disk. Returns a job id to poll."),
			mcp.WithString("file_path", mcp.Description("Path to the report file (.pdf, .txt or .md)"), mcp.Required()),
			mcp.WithString("company_name", mcp.Description("Company the report belongs to"), mcp.Required()),
			mcp.WithString("report_type", mcp.Description("annual or quarterly (default annual)")),
		),
		mcpAnalyzeReport(deps),
	)

	s.AddTool(
		mcp.NewTool("job_status",
			mcp.WithDescription("Get the status, progress and (once completed) result of an analysis job."),
			mcp.WithString("job_id", mcp.Description("Job id returned by analyze_report"), mcp.Required()),
		),
		mcpJobStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription("Ask a question about an analyzed company, answered from the ingested report context."),
			mcp.WithString("job_id", mcp.Description("Job id of a completed analysis"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskQuestion(deps),
	)

	return s
}

func mcpAnalyzeReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := req.RequireString("file_path")
		if err != nil {
			return mcpError("file_path is required"), nil
		}
		company, err := req.RequireString("company_name")
		if err != nil {
			return mcpError("company_name is required"), nil
		}

		reportType := req.GetString("report_type", "annual")
		if reportType != "annual" && reportType != "quarterly" {
			return mcpError("report_type must be annual or quarterly"), nil
		}

		jobID := deps.Registry.Create()
		go deps.Runner.Run(context.Background(), jobID, company, reportType, filePath)

		return mcpText(fmt.Sprintf(`{"job_id": %q}`, jobID)), nil
	}
}

func mcpJobStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		job, err := deps.Registry.Get(jobID)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError("job not found"), nil
		}

		b, err := json.Marshal(job)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal job: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		job, err := deps.Registry.Get(jobID)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError("job not found"), nil
		}

		answer, err := answerQuestion(ctx, deps.Retriever, deps.Generator, deps.TopK, job, question)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to retrieve context: %v", err)), nil
		}
		return mcpText(answer), nil
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
