package console

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/scope"
	"github.com/harunnryd/gmvctl/internal/strategy"
)

type Renderer struct {
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style

	infoStyle    lipgloss.Style
	successStyle lipgloss.Style
	warningStyle lipgloss.Style
	errorStyle   lipgloss.Style
}

func NewRenderer() *Renderer {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &Renderer{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),

		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		warningStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

func (r *Renderer) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return r.headerStyle
			case row%2 == 0:
				return r.evenRowStyle
			default:
				return r.oddRowStyle
			}
		}).
		Headers(headers...)
}

func (r *Renderer) Notice(n feedback.Notice) string {
	switch n.Tone {
	case feedback.Success:
		return r.successStyle.Render("✓ " + n.Message)
	case feedback.Warning:
		return r.warningStyle.Render("! " + n.Message)
	case feedback.Error:
		return r.errorStyle.Render("✗ " + n.Message)
	default:
		return r.infoStyle.Render("· " + n.Message)
	}
}

func (r *Renderer) Bindings(bindings []api.Binding) string {
	if len(bindings) == 0 {
		return "No bindings found"
	}

	t := r.newTable("Auth ID", "Alias", "Provider", "Primary", "Status")
	for _, b := range bindings {
		primary := ""
		if b.IsPrimary {
			primary = "yes"
		}
		t.Row(b.AuthID, truncate(b.Alias, 24), b.Provider, primary, b.Status)
	}
	return t.String()
}

func (r *Renderer) Policies(page api.Page[api.Policy]) string {
	if len(page.Items) == 0 {
		return "No policies found"
	}

	t := r.newTable("ID", "Name", "Provider", "Mode", "Enforce", "Enabled", "Domains")
	for _, p := range page.Items {
		enabled := ""
		if p.IsEnabled {
			enabled = "on"
		}
		t.Row(
			p.ID,
			truncate(p.Name, 24),
			p.ProviderKey,
			p.Mode,
			p.EnforcementMode,
			enabled,
			truncate(strings.Join(p.Domains, ", "), 32),
		)
	}

	footer := fmt.Sprintf("Page %d · %d total", page.Page, page.Total)
	return t.String() + "\n" + footer
}

func (r *Renderer) Products(page api.ProductPage) string {
	counts := scope.CountProducts(page.Items, page.Total)
	if len(page.Items) == 0 {
		return fmt.Sprintf("No products pulled (%d total server-side)", counts.Total)
	}

	t := r.newTable("ID", "Title", "Status", "Available", "Price")
	for _, p := range page.Items {
		avail := ""
		if scope.Available(p) {
			avail = "yes"
		}
		t.Row(p.ID, truncate(p.Title, 32), p.Status, avail, formatPrice(p.Price))
	}

	footer := fmt.Sprintf("Pulled %d / %d · %d available", counts.Pulled, counts.Total, counts.Available)
	return t.String() + "\n" + footer
}

func (r *Renderer) Scope(sel scope.Selection) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return r.headerStyle
			}
			return r.oddRowStyle
		})

	t.Row("Binding", orDash(sel.AuthID))
	t.Row("Mode", orDash(string(sel.Mode)))
	t.Row("BC", orDash(sel.BCID))
	t.Row("Advertiser", orDash(sel.AdvertiserID))
	t.Row("Store", orDash(sel.StoreID))
	return t.String()
}

func (r *Renderer) OptionsSnapshot(snap api.OptionsSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business centers: %d · Advertisers: %d · Stores: %d\n",
		len(snap.BusinessCenters), len(snap.Advertisers), len(snap.Stores))
	if snap.Summary != "" {
		b.WriteString(snap.Summary)
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) MetricsSummary(groups map[string]strategy.Summary, dimension string) string {
	if len(groups) == 0 {
		return "No metrics in range"
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := r.newTable(dimension, "Rows", "Spend", "GMV", "Orders", "ROAS", "CTR", "CPC", "CPM")
	for _, k := range keys {
		s := groups[k]
		t.Row(
			orDash(k),
			strconv.Itoa(s.Rows),
			fmt.Sprintf("%.2f", s.Spend),
			fmt.Sprintf("%.2f", s.GMV),
			strconv.Itoa(s.Orders),
			fmt.Sprintf("%.2f", s.ROAS),
			fmt.Sprintf("%.4f", s.AvgCTR),
			fmt.Sprintf("%.2f", s.AvgCPC),
			fmt.Sprintf("%.2f", s.AvgCPM),
		)
	}
	return t.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatPrice(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
