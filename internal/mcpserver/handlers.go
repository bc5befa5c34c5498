package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *FraudgateClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *FraudgateClient) *Handlers {
	return &Handlers{client: client}
}

// HandleScoreTransaction scores one transaction.
func (h *Handlers) HandleScoreTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	for _, field := range []string{"transaction_id", "account_id", "counterparty", "amount", "currency", "type", "channel"} {
		if req.GetString(field, "") == "" {
			return mcp.NewToolResultError(field + " is required"), nil
		}
	}

	timestamp := req.GetString("timestamp", "")
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	tx := map[string]any{
		"transactionId":    req.GetString("transaction_id", ""),
		"accountId":        req.GetString("account_id", ""),
		"counterparty":     req.GetString("counterparty", ""),
		"amount":           req.GetString("amount", ""),
		"currency":         req.GetString("currency", ""),
		"type":             req.GetString("type", ""),
		"channel":          req.GetString("channel", ""),
		"merchantCategory": req.GetString("merchant_category", ""),
		"timestamp":        timestamp,
	}
	if loc := req.GetString("location", ""); loc != "" {
		tx["location"] = loc
	}

	raw, err := h.client.ScoreTransaction(ctx, tx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Scoring failed: %v", err)), nil
	}

	text, err := formatDecision(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decision: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetAuditRecord looks up an audit record by transaction ID.
func (h *Handlers) HandleGetAuditRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transactionID := req.GetString("transaction_id", "")
	if transactionID == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetAuditRecord(ctx, transactionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get audit record: %v", err)), nil
	}

	text, err := formatAuditRecord(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse audit record: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListAuditRecords pages through the audit ledger.
func (h *Handlers) HandleListAuditRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cursor := req.GetString("cursor", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListAuditRecords(ctx, cursor, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list audit records: %v", err)), nil
	}

	text, err := formatAuditList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse audit records: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleVerifyAuditChain verifies the hash chain.
func (h *Handlers) HandleVerifyAuditChain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetInt("from", 0)
	to := req.GetInt("to", 0)

	raw, err := h.client.VerifyChain(ctx, uint64(from), uint64(to))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Verification failed: %v", err)), nil
	}

	text, err := formatVerifyResult(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse verification result: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetStats returns pipeline statistics.
func (h *Handlers) HandleGetStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	text, err := formatStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stats: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatDecision(raw json.RawMessage) (string, error) {
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	dec, ok := resp["decision"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected decision response format")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Decision: %s\n", strings.ToUpper(getString(dec, "action")))
	if v, ok := getFloat(dec, "score"); ok {
		fmt.Fprintf(&sb, "Risk score: %.4f (%s)\n", v, getString(dec, "riskLevel"))
	}
	fmt.Fprintf(&sb, "Transaction: %s\n", getString(dec, "transactionId"))

	if degraded, _ := dec["degraded"].(bool); degraded {
		sb.WriteString("Note: decision was made in degraded mode (some signals unavailable)\n")
	}

	if reasons, ok := dec["reasons"].([]any); ok && len(reasons) > 0 {
		sb.WriteString("\nReasons:\n")
		for _, r := range reasons {
			fmt.Fprintf(&sb, "  - %v\n", r)
		}
	}
	if recs, ok := dec["recommendations"].([]any); ok && len(recs) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range recs {
			fmt.Fprintf(&sb, "  - %v\n", r)
		}
	}

	if seq, ok := getFloat(resp, "auditSequence"); ok {
		fmt.Fprintf(&sb, "\nAudit sequence: %.0f\n", seq)
	}
	if ms, ok := getFloat(resp, "processingTimeMs"); ok {
		fmt.Fprintf(&sb, "Processing time: %.0fms\n", ms)
	}

	return sb.String(), nil
}

func formatAuditRecord(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Audit Record:\n")
	if v, ok := getFloat(m, "sequence"); ok {
		fmt.Fprintf(&sb, "  Sequence: %.0f\n", v)
	}
	fmt.Fprintf(&sb, "  Transaction: %s\n", getString(m, "transactionId"))
	fmt.Fprintf(&sb, "  Decision: %s\n", getString(m, "decisionId"))
	fmt.Fprintf(&sb, "  Action: %s\n", getString(m, "action"))
	if v, ok := getFloat(m, "score"); ok {
		fmt.Fprintf(&sb, "  Score: %.4f\n", v)
	}
	fmt.Fprintf(&sb, "  Recorded: %s\n", getString(m, "recordedAt"))
	fmt.Fprintf(&sb, "  Hash: %s\n", getString(m, "hash"))
	fmt.Fprintf(&sb, "  Previous: %s\n", getString(m, "prevHash"))

	return sb.String(), nil
}

func formatAuditList(raw json.RawMessage) (string, error) {
	var resp struct {
		Records []map[string]any `json:"records"`
		HasMore bool             `json:"hasMore"`
		Cursor  string           `json:"nextCursor"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected audit list format")
	}

	if len(resp.Records) == 0 {
		return "The audit trail is empty.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d audit record(s):\n\n", len(resp.Records))
	for _, r := range resp.Records {
		seq, _ := getFloat(r, "sequence")
		score, _ := getFloat(r, "score")
		fmt.Fprintf(&sb, "#%.0f %s -> %s (score %.4f)\n",
			seq, getString(r, "transactionId"), getString(r, "action"), score)
	}
	if resp.HasMore {
		fmt.Fprintf(&sb, "\nMore records available. Pass cursor %q to continue.\n", resp.Cursor)
	}
	return sb.String(), nil
}

func formatVerifyResult(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	checked, _ := getFloat(m, "checked")
	if valid, _ := m["valid"].(bool); valid {
		return fmt.Sprintf("Audit chain intact: %.0f record(s) verified.", checked), nil
	}

	brokenAt, _ := getFloat(m, "brokenAt")
	return fmt.Sprintf(
		"AUDIT CHAIN BROKEN at sequence %.0f.\n"+
			"%.0f record(s) were checked before the break. "+
			"Records at and after this sequence can no longer be trusted.",
		brokenAt, checked), nil
}

func formatStats(raw json.RawMessage) (string, error) {
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	pl, ok := resp["pipeline"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected stats response format")
	}

	var sb strings.Builder
	sb.WriteString("Scoring Pipeline:\n")
	if v, ok := getFloat(pl, "totalScored"); ok {
		fmt.Fprintf(&sb, "  Scored:   %.0f\n", v)
	}
	if v, ok := getFloat(pl, "allowed"); ok {
		fmt.Fprintf(&sb, "  Allowed:  %.0f\n", v)
	}
	if v, ok := getFloat(pl, "reviewed"); ok {
		fmt.Fprintf(&sb, "  Reviewed: %.0f\n", v)
	}
	if v, ok := getFloat(pl, "blocked"); ok {
		fmt.Fprintf(&sb, "  Blocked:  %.0f\n", v)
	}
	if v, ok := getFloat(pl, "fraudRate"); ok {
		fmt.Fprintf(&sb, "  Fraud rate: %.2f%%\n", v*100)
	}
	if v, ok := getFloat(resp, "auditRecords"); ok {
		fmt.Fprintf(&sb, "\nAudit ledger: %.0f record(s)\n", v)
	}

	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
