package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/txsentinel/internal/dashboard"
	"github.com/mbd888/txsentinel/internal/enrich"
	"github.com/mbd888/txsentinel/internal/ether"
	"github.com/mbd888/txsentinel/internal/risk"
	"github.com/mbd888/txsentinel/internal/txn"
	"github.com/mbd888/txsentinel/internal/validation"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleScoreTransaction scores a transaction locally.
func (h *Handlers) HandleScoreTransaction(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tx := txn.RawTransaction{
		Hash:    req.GetString("hash", ""),
		From:    strings.TrimSpace(req.GetString("from", "")),
		To:      strings.TrimSpace(req.GetString("to", "")),
		Value:   strings.TrimSpace(req.GetString("value", "")),
		GasUsed: strings.TrimSpace(req.GetString("gas_used", "21000")),
	}
	if errs := validation.Validate(
		validation.Required("from", tx.From),
		validation.ValidAddress("from", tx.From),
		validation.ValidAddress("to", tx.To),
		validation.Required("value", tx.Value),
	); len(errs) > 0 {
		return mcp.NewToolResultError(errs.Error()), nil
	}

	assessment, category, err := risk.Analyze(tx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	if tx.Hash != "" {
		fmt.Fprintf(&sb, "Transaction: %s\n", tx.Hash)
	}
	fmt.Fprintf(&sb, "Risk: %s (score %d/100)\n", assessment.Level, assessment.Score)
	fmt.Fprintf(&sb, "Intent: %s\n", category)
	fmt.Fprintf(&sb, "Value: %s ETH\n", ether.FormatString(tx.Value))
	if tx.To == "" {
		sb.WriteString("Recipient: none (contract creation)\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleWalletActivity lists the connected wallet's enriched transactions.
func (h *Handlers) HandleWalletActivity(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.WalletActivity(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load wallet activity: %v", err)), nil
	}

	text, err := formatBatch(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transactions: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleScanAddress scores the recent transactions of any address.
func (h *Handlers) HandleScanAddress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := validation.SanitizeAddress(req.GetString("address", ""))
	if !validation.IsValidEthAddress(address) {
		return mcp.NewToolResultError("address must be a valid Ethereum address (0x + 40 hex chars)"), nil
	}

	raw, err := h.client.ScanAddress(ctx, address, req.GetBool("explain", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to scan address: %v", err)), nil
	}

	text, err := formatBatch(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transactions: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleAskAssistant forwards a question to the wallet assistant.
func (h *Handlers) HandleAskAssistant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := strings.TrimSpace(req.GetString("message", ""))
	if message == "" {
		return mcp.NewToolResultError("message is required"), nil
	}

	raw, err := h.client.Ask(ctx, message)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Assistant unavailable: %v", err)), nil
	}

	var ex dashboard.ChatExchange
	if err := json.Unmarshal(raw, &ex); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reply: %v", err)), nil
	}
	text := ex.Answer.Text
	if ex.Fallback {
		text += "\n\n(The AI model could not be reached; this is a fallback reply.)"
	}
	return mcp.NewToolResultText(text), nil
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

// batchView is the subset of a batch response the tools render.
type batchView struct {
	Records  []enrich.Record    `json:"records"`
	Rejected []enrich.Rejection `json:"rejected"`
	Demo     bool               `json:"demo"`
	HighRisk int                `json:"highRisk"`
}

func formatBatch(raw json.RawMessage) (string, error) {
	var b batchView
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", err
	}
	if len(b.Records) == 0 {
		return "No transactions found in the latest block.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d transactions, %d high risk", len(b.Records), b.HighRisk)
	if b.Demo {
		sb.WriteString(" (demo data: nothing was found on chain)")
	}
	sb.WriteString("\n")

	for i, rec := range b.Records {
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, rec.Hash)
		to := rec.To
		if to == "" {
			to = "(contract creation)"
		}
		fmt.Fprintf(&sb, "   %s -> %s, %s ETH, gas %s\n", rec.From, to, ether.FormatString(rec.Value), rec.GasUsed)
		fmt.Fprintf(&sb, "   Risk: %s (%d), Intent: %s\n", rec.Risk.Level, rec.Risk.Score, rec.Context)
		if exp, ok := rec.Analysis.Text(); ok {
			fmt.Fprintf(&sb, "   %s\n", exp.Explanation)
			if exp.Suggestion != "" {
				fmt.Fprintf(&sb, "   Suggestion: %s\n", exp.Suggestion)
			}
		}
	}
	for _, r := range b.Rejected {
		fmt.Fprintf(&sb, "\nSkipped %s: %s\n", r.Hash, r.Error)
	}
	return sb.String(), nil
}
