// Package render projects balance sync views onto outputs. Renderers are
// pure: they read a View and never write back to the store.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"coinfolio/internal/balancesync"
)

// Theme is the card's color palette.
type Theme struct {
	Border  lipgloss.Color
	Muted   lipgloss.Color
	Text    lipgloss.Color
	Primary lipgloss.Color
	Warning lipgloss.Color
}

// DefaultTheme is a dark palette.
var DefaultTheme = Theme{
	Border:  lipgloss.Color("#4D4C57"),
	Muted:   lipgloss.Color("#858392"),
	Text:    lipgloss.Color("#DFDBDD"),
	Primary: lipgloss.Color("#6B50FF"),
	Warning: lipgloss.Color("#FFD300"),
}

// Card draws the portfolio as a bordered terminal card.
type Card struct {
	mu    sync.Mutex
	out   io.Writer
	theme Theme
}

// NewCard creates a card that writes to out.
func NewCard(out io.Writer, theme Theme) *Card {
	return &Card{out: out, theme: theme}
}

// Render implements balancesync.Renderer.
func (c *Card) Render(v balancesync.View) {
	s := CardString(v, c.theme)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, s)
}

// CardString renders v as a card.
func CardString(v balancesync.View, theme Theme) string {
	label := lipgloss.NewStyle().Foreground(theme.Muted)
	value := lipgloss.NewStyle().Foreground(theme.Text).Bold(true)
	title := lipgloss.NewStyle().Foreground(theme.Primary).Bold(true)

	snap := v.Snapshot
	var b strings.Builder

	header := title.Render("Portfolio")
	if v.Stale() {
		header += "  " + lipgloss.NewStyle().Foreground(theme.Warning).Render(staleLabel(v))
	}
	b.WriteString(header + "\n\n")

	rows := [][2]string{
		{"Balance", FormatMoney(snap.Balance)},
		{"Holdings", FormatMoney(snap.TotalValue)},
		{"Net worth", FormatMoney(snap.NetWorth)},
	}
	for _, r := range rows {
		b.WriteString(label.Width(12).Render(r[0]) + value.Render(r[1]) + "\n")
	}

	if len(snap.Holdings) > 0 {
		b.WriteString("\n")
		for _, h := range snap.Holdings {
			line := fmt.Sprintf("%-6s %14s  %12s  %6s",
				h.Symbol, h.Amount.String(), FormatMoney(h.Value), FormatPercent(h.Allocation))
			b.WriteString(label.Render(line) + "\n")
		}
	}

	if !v.LastSync.IsZero() {
		b.WriteString("\n" + label.Render("synced "+v.LastSync.Format(time.Kitchen)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Padding(0, 1).
		Render(strings.TrimRight(b.String(), "\n"))
}

func staleLabel(v balancesync.View) string {
	switch v.State {
	case balancesync.StateUninitialized:
		return "not synced"
	case balancesync.StateSyncing:
		return "syncing"
	default:
		return "stale"
	}
}
