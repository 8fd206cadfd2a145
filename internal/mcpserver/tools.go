package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the TxSentinel MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScoreTransaction = mcp.NewTool("score_transaction",
	mcp.WithDescription(
		"Score an Ethereum transaction for risk (0-100, Low/Medium/High) and classify its intent. "+
			"Runs locally and deterministically; no network access and no AI involved."),
	mcp.WithString("from",
		mcp.Required(),
		mcp.Description("Sender address (e.g. '0x742d...')")),
	mcp.WithString("to",
		mcp.Description("Recipient address. Omit for contract creation.")),
	mcp.WithString("value",
		mcp.Required(),
		mcp.Description("Amount in wei as a base-10 integer (e.g. '1500000000000000000' for 1.5 ETH)")),
	mcp.WithString("gas_used",
		mcp.Description("Gas used as a base-10 integer (default '21000')")),
	mcp.WithString("hash",
		mcp.Description("Optional transaction hash, echoed back in the result")),
)

var ToolWalletActivity = mcp.NewTool("wallet_activity",
	mcp.WithDescription(
		"Show the connected wallet's recent transactions with risk level, intent and AI explanation, "+
			"as currently displayed by a running TxSentinel server."),
)

var ToolScanAddress = mcp.NewTool("scan_address",
	mcp.WithDescription(
		"Read the latest block for transactions sent from or to any address and score them. "+
			"Does not change the connected wallet."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Address to scan (e.g. '0x1234...')")),
	mcp.WithBoolean("explain",
		mcp.Description("Also generate an AI explanation for every transaction (slower)")),
)

var ToolAskAssistant = mcp.NewTool("ask_assistant",
	mcp.WithDescription(
		"Ask the wallet assistant a question about the connected wallet and its recent transactions. "+
			"Answers are grounded in the balance and enriched transaction list."),
	mcp.WithString("message",
		mcp.Required(),
		mcp.Description("The question, e.g. 'Is my wallet safe?'")),
)
