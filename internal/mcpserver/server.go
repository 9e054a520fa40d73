// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes contract hub tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/projectvak/contracthub/internal/apperr"
	"github.com/projectvak/contracthub/internal/contractservice"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/status"
)

const (
	statusRulesURI     = "contracthub://status-rules"
	defaultSearchLimit = 20
)

// Server wraps the MCP server with contract hub tools.
type Server struct {
	mcp *server.MCPServer
	svc *contractservice.Service
}

// New creates a new MCP server with all tools registered. The tools are
// read-only; pushing and editing stay behind the REST API.
func New(svc *contractservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ContractHub",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Case-insensitive substring search over indexed document names or paths. "+
			"Underscored slugs such as meir_78 also match names written with spaces."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Substring to look for")),
		mcp.WithString("field", mcp.Description("Field to search: name (default) or path"), mcp.Enum("name", "path")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("get_contract",
		mcp.WithDescription("Read one contract record with its extracted data, edit history and derived status."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Contract filename, e.g. data_Meir_78_20250125_123456.json")),
	), s.getContract)

	s.mcp.AddTool(mcp.NewTool("list_contracts",
		mcp.WithDescription("List contracts with their derived status. Call contract_status_rules to interpret statuses."),
		mcp.WithString("status", mcp.Description("Optional status filter"),
			mcp.Enum(statusNames()...)),
	), s.listContracts)

	s.mcp.AddTool(mcp.NewTool("match_pdf",
		mcp.WithDescription("Find the source PDF of a contract in the document index without storing the link."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Contract filename")),
	), s.matchPDF)

	s.mcp.AddTool(mcp.NewTool("contract_status_rules",
		mcp.WithDescription("Returns the rules that derive a contract's status from its confidence and flags."),
	), s.statusRules)

	s.mcp.AddResource(
		mcp.NewResource(statusRulesURI, "Contract Status Rules",
			mcp.WithResourceDescription("How contract statuses are derived and rolled up per property."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStatusRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func statusNames() []string {
	out := make([]string, len(status.All))
	for i, st := range status.All {
		out[i] = string(st)
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found"), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	field := models.SearchField(req.GetString("field", string(models.SearchByName)))
	limit := req.GetInt("limit", defaultSearchLimit)

	results, err := s.svc.SearchDocuments(ctx, query, field, limit)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(results)
}

func (s *Server) getContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Get(ctx, filename)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(d)
}

func (s *Server) listContracts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := status.Status(req.GetString("status", ""))
	items, err := s.svc.List(ctx, filter)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(items)
}

func (s *Server) matchPDF(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Match(ctx, filename)
	if err != nil {
		return errorResult(err)
	}
	if !res.Linked {
		return mcp.NewToolResultText(fmt.Sprintf("no PDF available for %s", filename)), nil
	}
	return jsonResult(res.Match)
}

func (s *Server) statusRules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StatusRules(s.svc.Thresholds())), nil
}

func (s *Server) readStatusRulesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      statusRulesURI,
			MIMEType: "text/markdown",
			Text:     StatusRules(s.svc.Thresholds()),
		},
	}, nil
}
