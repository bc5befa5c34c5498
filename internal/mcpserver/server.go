package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Fraudgate tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("fraudgate", "1.0.0")
	client := NewFraudgateClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolScoreTransaction, h.HandleScoreTransaction)
	s.AddTool(ToolGetAuditRecord, h.HandleGetAuditRecord)
	s.AddTool(ToolListAuditRecords, h.HandleListAuditRecords)
	s.AddTool(ToolVerifyAuditChain, h.HandleVerifyAuditChain)
	s.AddTool(ToolGetStats, h.HandleGetStats)

	return s
}
