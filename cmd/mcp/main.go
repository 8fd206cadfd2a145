// TxSentinel MCP Server - Exposes wallet risk analysis as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/txsentinel/internal/mcpserver"
	"github.com/mbd888/txsentinel/internal/security"
)

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("TXSENTINEL_API_URL", "http://localhost:8080"),
	}

	if err := security.ValidateRPCURL(cfg.APIURL, true); err != nil {
		fmt.Fprintf(os.Stderr, "TXSENTINEL_API_URL: %v\n", err)
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
