// Package mcptools serves the script generator as MCP tools.
package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with plan_script and generate_script
// registered.
func NewMCPServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "architect",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "plan_script",
		Description: "Break a program request into an ordered list of code sections without writing any code.",
	}, svc.PlanScript)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_script",
		Description: "Plan a single-file program and write it section by section. Returns the assembled script.",
	}, svc.GenerateScript)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
