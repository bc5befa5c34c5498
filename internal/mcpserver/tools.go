package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Fraudgate MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScoreTransaction = mcp.NewTool("score_transaction",
	mcp.WithDescription(
		"Score a banking transaction for fraud risk. "+
			"Runs the transaction through the rule engine and model ensemble and returns "+
			"an allow/review/block decision with the risk score, triggered rules, and recommendations. "+
			"Every decision is recorded in a tamper-evident audit trail."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("Unique identifier for the transaction (e.g. 'txn_abc123')")),
	mcp.WithString("account_id",
		mcp.Required(),
		mcp.Description("The account initiating the transaction")),
	mcp.WithString("counterparty",
		mcp.Required(),
		mcp.Description("The merchant or account on the other side of the transaction")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Transaction amount as a decimal string (e.g. '149.99')")),
	mcp.WithString("currency",
		mcp.Required(),
		mcp.Description("ISO 4217 currency code (e.g. 'USD')")),
	mcp.WithString("type",
		mcp.Required(),
		mcp.Description("Transaction type"),
		mcp.Enum("purchase", "withdrawal", "transfer", "deposit", "payment", "refund")),
	mcp.WithString("channel",
		mcp.Required(),
		mcp.Description("Payment channel the transaction arrived through"),
		mcp.Enum("online", "pos", "atm", "mobile")),
	mcp.WithString("merchant_category",
		mcp.Description("Merchant category name (e.g. 'grocery', 'gambling')")),
	mcp.WithString("location",
		mcp.Description("ISO 3166-1 alpha-2 country code where the transaction originated (e.g. 'US')")),
	mcp.WithString("timestamp",
		mcp.Description("RFC 3339 transaction timestamp. Defaults to now.")),
)

var ToolGetAuditRecord = mcp.NewTool("get_audit_record",
	mcp.WithDescription(
		"Look up the audit record for a previously scored transaction. "+
			"Returns the recorded decision, its position in the hash chain, and the chain hashes."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction ID used when the transaction was scored")),
)

var ToolListAuditRecords = mcp.NewTool("list_audit_records",
	mcp.WithDescription(
		"Page through the decision audit trail in chain order. "+
			"Returns audit records with their sequence numbers, actions, and scores."),
	mcp.WithString("cursor",
		mcp.Description("Opaque cursor from a previous page (omit for the first page)")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of records to return (default 20)")),
)

var ToolVerifyAuditChain = mcp.NewTool("verify_audit_chain",
	mcp.WithDescription(
		"Verify the integrity of the decision audit trail. "+
			"Recomputes the hash chain and reports whether any record has been tampered with. "+
			"Optionally verify only a subrange of sequence numbers."),
	mcp.WithNumber("from",
		mcp.Description("First sequence number to verify (default: start of chain)")),
	mcp.WithNumber("to",
		mcp.Description("Last sequence number to verify (default: head of chain)")),
)

var ToolGetStats = mcp.NewTool("get_stats",
	mcp.WithDescription(
		"Get scoring pipeline statistics: transactions scored, decision breakdown "+
			"(allowed/reviewed/blocked), fraud detection rate, and audit ledger size."),
)
