package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/valutetrade/hub/internal/domain"
	"github.com/valutetrade/hub/internal/services/ledger"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("160")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"})
)

func renderError(err error) string {
	return errStyle.Render("error: ") + err.Error()
}

func renderUpdateResult(result domain.UpdateResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s accepted=%d rejected=%d\n",
		headerStyle.Render("rates updated:"), result.Accepted, result.Rejected)
	for _, pe := range result.Errors {
		fmt.Fprintf(&b, "%s %s\n", warnStyle.Render("warning:"), pe.Error())
	}
	return b.String()
}

func renderRate(rec domain.RateRecord, price decimal.Decimal, base string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", headerStyle.Render(rec.Currency), price.StringFixed(8), base)
	fmt.Fprintf(&b, "%s\n", dimStyle.Render(fmt.Sprintf("source %s, observed %s",
		rec.Source, rec.ObservedAt.Format("2006-01-02 15:04:05 MST"))))
	return b.String()
}

func renderTopEntries(entries []domain.TopEntry, base string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headerStyle.Render(fmt.Sprintf("top rates (base %s)", base)))
	for i, e := range entries {
		fmt.Fprintf(&b, "%2d. %-6s %s\n", i+1, e.Currency, e.Price.StringFixed(8))
	}
	return b.String()
}

func renderAllRates(all map[string]decimal.Decimal, base string) string {
	codes := make([]string, 0, len(all))
	for code := range all {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headerStyle.Render(fmt.Sprintf("cached rates (base %s)", base)))
	if len(codes) == 0 {
		b.WriteString(dimStyle.Render("cache is empty, run update-rates first") + "\n")
		return b.String()
	}
	for _, code := range codes {
		fmt.Fprintf(&b, "%-6s %s\n", code, all[code].StringFixed(8))
	}
	return b.String()
}

func renderTradeResult(result *domain.TradeResult) string {
	t := result.Trade

	var b strings.Builder
	switch {
	case t.Currency == t.Base:
		fmt.Fprintf(&b, "%s %s %s\n", headerStyle.Render("deposited:"), t.Amount, t.Base)
	case t.Side == domain.SideBuy:
		fmt.Fprintf(&b, "%s %s %s at %s %s/%s, cost %s %s\n",
			headerStyle.Render("bought:"), t.Amount, t.Currency,
			t.Rate.StringFixed(8), t.Base, t.Currency, t.BaseDelta.Neg(), t.Base)
	default:
		fmt.Fprintf(&b, "%s %s %s at %s %s/%s, proceeds %s %s\n",
			headerStyle.Render("sold:"), t.Amount, t.Currency,
			t.Rate.StringFixed(8), t.Base, t.Currency, t.BaseDelta, t.Base)
	}

	codes := make([]string, 0, len(result.Balances))
	for code := range result.Balances {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	b.WriteString("balances:\n")
	for _, code := range codes {
		fmt.Fprintf(&b, "  %-6s %s\n", code, result.Balances[code])
	}
	return b.String()
}

func renderPortfolio(username string, view *ledger.View) string {
	var b strings.Builder
	owner := username
	if owner == "" {
		owner = view.UserID
	}
	fmt.Fprintf(&b, "%s\n", headerStyle.Render(fmt.Sprintf("portfolio of %s (base %s)", owner, view.Base)))

	if len(view.Holdings) == 0 {
		b.WriteString(dimStyle.Render("portfolio is empty") + "\n")
		return b.String()
	}

	for _, h := range view.Holdings {
		if h.Priceable {
			fmt.Fprintf(&b, "  %-6s %-20s -> %s %s\n", h.Currency, h.Amount.String(), h.Value.StringFixed(2), view.Base)
		} else {
			fmt.Fprintf(&b, "  %-6s %-20s -> %s\n", h.Currency, h.Amount.String(), warnStyle.Render("rate unavailable"))
		}
	}
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 30))
	fmt.Fprintf(&b, "TOTAL: %s %s\n", view.Total.StringFixed(2), view.Base)
	return b.String()
}
