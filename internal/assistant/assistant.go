// Package assistant answers free-text questions about the connected
// wallet. Every question is sent with the full wallet context; nothing is
// remembered between calls except the transcript kept for display.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mbd888/txsentinel/internal/enrich"
	"github.com/mbd888/txsentinel/internal/ether"
	"github.com/mbd888/txsentinel/internal/explainer"
	"github.com/mbd888/txsentinel/internal/wallet"
)

// Greeting opens every transcript.
const Greeting = "Hi! I'm your Context Wallet Assistant. Ask me anything about your wallet or transactions!"

// Suggestions are offered as one-tap questions.
var Suggestions = []string{
	"What is my balance?",
	"Show my last transaction",
	"Is my wallet safe?",
	"Explain my recent activity",
}

// MaxQuestionLength bounds a single question in bytes.
const MaxQuestionLength = 2000

var (
	ErrEmptyQuestion   = errors.New("assistant: empty question")
	ErrQuestionTooLong = errors.New("assistant: question too long")
)

// Reply is the assistant's answer. Fallback is set when the model failed
// and Text is the fixed apology.
type Reply struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

// Assistant relays questions to the explainer.
type Assistant struct {
	explainer explainer.Explainer
	logger    *slog.Logger
}

// New creates an Assistant.
func New(exp explainer.Explainer, logger *slog.Logger) *Assistant {
	return &Assistant{explainer: exp, logger: logger}
}

// Ask answers question using the session and records as context. It only
// returns an error for invalid questions; model failures produce the
// fallback reply.
func (a *Assistant) Ask(ctx context.Context, question string, sess *wallet.Session, records []enrich.Record) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyQuestion
	}
	if len(question) > MaxQuestionLength {
		return Reply{}, ErrQuestionTooLong
	}

	text, err := a.explainer.Chat(ctx, question, BuildContext(sess, records))
	if err != nil {
		a.logger.Warn("chat failed", "error", err)
		return Reply{Text: explainer.FallbackReply, Fallback: true}, nil
	}
	return Reply{Text: text}, nil
}

// BuildContext renders the wallet and its enriched transactions as the
// text the model answers from.
func BuildContext(sess *wallet.Session, records []enrich.Record) string {
	var sb strings.Builder
	if sess == nil {
		sb.WriteString("Wallet: not connected\n")
	} else {
		fmt.Fprintf(&sb, "Wallet Address: %s\n", sess.Address)
		fmt.Fprintf(&sb, "Balance: %s ETH\n", sess.Balance)
	}

	if len(records) == 0 {
		sb.WriteString("Recent Transactions: none\n")
		return sb.String()
	}

	sb.WriteString("Recent Transactions:\n")
	for _, rec := range records {
		explanation := "Pending analysis"
		if exp, ok := rec.Analysis.Text(); ok {
			explanation = exp.Explanation
		}
		fmt.Fprintf(&sb, "- Hash: %s | Value: %s ETH | Risk: %s | Context: %s | Explanation: %s\n",
			rec.Hash, ether.FormatString(rec.Value), rec.Risk.Level, rec.Context, explanation)
	}
	return sb.String()
}
