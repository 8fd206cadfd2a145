package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all TxSentinel tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("txsentinel", "1.0.0")
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolScoreTransaction, h.HandleScoreTransaction)
	s.AddTool(ToolWalletActivity, h.HandleWalletActivity)
	s.AddTool(ToolScanAddress, h.HandleScanAddress)
	s.AddTool(ToolAskAssistant, h.HandleAskAssistant)

	return s
}
