package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/amdiaz/rotor/internal/domain"
)

// Console implements ports.Notifier on stdout. Default output is a compact
// one-liner per rebalance date that actually did something; table mode adds
// full trade tables for auditing a run by eye.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a notifier writing to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Rebalance prints one committed date. Quiet dates (no trades, no breaker)
// print nothing — on a multi-year run that is almost all of them.
func (c *Console) Rebalance(_ context.Context, report domain.RebalanceReport) error {
	if len(report.Trades) == 0 && !report.BuysSuppressed {
		return nil
	}

	c.printCompact(report)
	if c.table && len(report.Trades) > 0 {
		c.printTrades(report.Trades)
	}
	return nil
}

func (c *Console) printCompact(report domain.RebalanceReport) {
	buys, sells := 0, 0
	for _, tr := range report.Trades {
		if tr.Action == domain.ActionBuy {
			buys++
		} else {
			sells++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] pool:%d elig:%d buy:%d sell:%d eq:$%.2f",
		report.Date.Format("2006-01-02"), report.PoolSize, report.EligibleCount,
		buys, sells, report.Equity.TotalEquity)

	for _, fe := range report.ForcedExits {
		fmt.Fprintf(&sb, " | EXIT %s (%s)", fe.Symbol, fe.Reason)
	}
	if report.BuysSuppressed {
		sb.WriteString(" | BUYS SUPPRESSED")
	}

	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printTrades(trades []domain.Trade) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Date", "Symbol", "Action", "Shares", "Price", "Reason")
	for _, tr := range trades {
		table.Append(
			tr.Date.Format("2006-01-02"),
			tr.Symbol,
			string(tr.Action),
			fmt.Sprintf("%.4f", tr.Shares),
			fmt.Sprintf("%.4f", tr.Price),
			string(tr.Reason),
		)
	}
	table.Render()
}

// Summary prints the final run report: headline stats, exit-reason
// breakdown and (in table mode) the full trade log.
func (c *Console) Summary(_ context.Context, stats domain.RunStats, trades []domain.Trade, equity []domain.EquityPoint) error {
	fmt.Fprintf(c.out, "\n=== %s → %s (%d trading days) ===\n",
		stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"), stats.TradingDays)

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Initial capital", fmt.Sprintf("$%.2f", stats.InitialCapital))
	table.Append("Final equity", fmt.Sprintf("$%.2f", stats.FinalEquity))
	table.Append("Total return", fmt.Sprintf("%+.2f%%", stats.TotalReturn*100))
	table.Append("Max drawdown", fmt.Sprintf("%.2f%%", stats.MaxDrawdown*100))
	table.Append("Trades", fmt.Sprintf("%d (%d buys / %d sells)", stats.TotalTrades, stats.Buys, stats.Sells))
	table.Append("Win rate", fmt.Sprintf("%.1f%%", stats.WinRate*100))
	table.Append("Avg exposure", fmt.Sprintf("%.1f%%", stats.AvgExposure*100))
	for _, reason := range []domain.TradeReason{
		domain.ReasonATRStop, domain.ReasonTimeStop, domain.ReasonCircuitBreaker, domain.ReasonRotationExcluded,
	} {
		if n := stats.ForcedExits[reason]; n > 0 {
			table.Append(fmt.Sprintf("Exits: %s", reason), fmt.Sprintf("%d", n))
		}
	}
	table.Render()

	if c.table && len(trades) > 0 {
		fmt.Fprintf(c.out, "\nTrade log (%d trades):\n", len(trades))
		c.printTrades(trades)
	}

	if len(equity) > 0 {
		last := equity[len(equity)-1]
		fmt.Fprintf(c.out, "final: cash $%.2f + positions $%.2f = $%.2f\n",
			last.Cash, last.PositionsValue, last.TotalEquity)
	}
	return nil
}
