package common

import (
	"fmt"
	"io"
	"strings"

	"chatwallet/internal/models"
)

const ReportWidth = 100

const timeLayout = "2006-01-02 15:04:05"

// HistoryReport renders the per-account history tree printed by cmd/history.
type HistoryReport struct {
	w     io.Writer
	width int
}

func NewHistoryReport(w io.Writer) *HistoryReport {
	return &HistoryReport{w: w, width: ReportWidth}
}

func (r *HistoryReport) Header(title string) {
	fmt.Fprintln(r.w, "\n"+strings.Repeat("=", r.width))
	fmt.Fprintln(r.w, title)
	fmt.Fprintln(r.w, strings.Repeat("=", r.width))
}

func (r *HistoryReport) Footer(message string) {
	fmt.Fprintln(r.w, "\n"+strings.Repeat("=", r.width))
	fmt.Fprintln(r.w, message)
	fmt.Fprintln(r.w, strings.Repeat("=", r.width)+"\n")
}

// Account prints the account header block with its wallets. The handle is
// masked.
func (r *HistoryReport) Account(account AccountInfo, wallets []models.Wallet, txCount int) {
	name := account.DisplayName
	if name == "" {
		name = "unnamed"
	}
	fmt.Fprintf(r.w, "\n┌─ Account: %s (%s)\n", name, models.MaskHandle(account.Handle))
	fmt.Fprintf(r.w, "│  ID: %s\n", account.Id)
	fmt.Fprintf(r.w, "│  Onboarding: %s\n", account.Status)
	for _, w := range wallets {
		def := ""
		if w.IsDefault {
			def = " default"
		}
		fmt.Fprintf(r.w, "│  %-8s %s (%s)%s\n", w.Family, w.Address, w.DerivationPath, def)
	}
	fmt.Fprintf(r.w, "│  Transactions: %d\n", txCount)
	fmt.Fprintln(r.w, "├"+strings.Repeat("─", r.width-2))
}

// Transaction prints one record line; swaps show both legs.
func (r *HistoryReport) Transaction(tx models.TransactionRecord, isLast bool) {
	prefix := "│  "
	if isLast {
		prefix = "└  "
	}
	asset := tx.TokenSymbol
	if tx.Type == models.TransactionSwap {
		asset = tx.TokenSymbol + "->" + tx.ToTokenSymbol
	}
	fmt.Fprintf(r.w, "%s %-6s %-8s %-12s: %20s (%s, hash: %s, at: %s)\n",
		prefix,
		tx.Type,
		tx.Family,
		asset,
		tx.Amount.String(),
		tx.Status,
		ShortHash(tx.Hash),
		tx.CreatedAt.Format(timeLayout))
}

// ShortHash trims a transaction hash for display.
func ShortHash(hash string) string {
	if hash == "" {
		return "none"
	}
	if len(hash) > 12 {
		return hash[:12] + "..."
	}
	return hash
}
