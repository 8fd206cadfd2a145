package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbd888/txsentinel/internal/enrich"
	"github.com/mbd888/txsentinel/internal/ether"
	"github.com/mbd888/txsentinel/internal/risk"
)

// printer renders records to the command's output.
type printer struct {
	w    io.Writer
	json bool

	bold  *color.Color
	faint *color.Color
}

func newPrinter(cmd *cobra.Command) *printer {
	noColor, _ := cmd.Flags().GetBool("no-color")
	asJSON, _ := cmd.Flags().GetBool("json")

	p := &printer{
		w:     cmd.OutOrStdout(),
		json:  asJSON,
		bold:  color.New(color.Bold),
		faint: color.New(color.Faint),
	}
	if noColor {
		color.NoColor = true
	}
	return p
}

func (p *printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// levelColor picks the badge color for a risk level.
func levelColor(level risk.Level) *color.Color {
	switch level {
	case risk.LevelHigh:
		return color.New(color.FgRed, color.Bold)
	case risk.LevelMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func (p *printer) record(n int, rec enrich.Record) {
	badge := levelColor(rec.Risk.Level)

	hash := rec.Hash
	if hash == "" {
		hash = "(no hash)"
	}
	to := rec.To
	if to == "" {
		to = "(contract creation)"
	}

	p.bold.Fprintf(p.w, "%d. %s\n", n, hash)
	fmt.Fprintf(p.w, "   %s -> %s\n", rec.From, to)
	fmt.Fprintf(p.w, "   %s ETH, gas %s\n", ether.FormatString(rec.Value), rec.GasUsed)
	fmt.Fprint(p.w, "   Risk: ")
	badge.Fprintf(p.w, "%s (%d/100)", rec.Risk.Level, rec.Risk.Score)
	fmt.Fprintf(p.w, "  Intent: %s\n", rec.Context)

	if exp, ok := rec.Analysis.Text(); ok {
		fmt.Fprintf(p.w, "   %s\n", exp.Explanation)
		if exp.Suggestion != "" {
			p.faint.Fprintf(p.w, "   Suggestion: %s\n", exp.Suggestion)
		}
	}
}

func (p *printer) batch(address string, res enrich.Result) {
	header := fmt.Sprintf("%s: %d transactions", address, len(res.Records))
	if high := res.HighRisk(); high > 0 {
		header += fmt.Sprintf(", %d high risk", high)
	}
	p.bold.Fprintln(p.w, header)

	if len(res.Records) == 0 {
		p.faint.Fprintln(p.w, "No transactions in the recent window.")
	}
	for i, rec := range res.Records {
		fmt.Fprintln(p.w)
		p.record(i+1, rec)
	}
	for _, r := range res.Rejected {
		p.faint.Fprintf(p.w, "\nSkipped %s: %s\n", r.Hash, r.Error)
	}
}
