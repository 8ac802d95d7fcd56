package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/fuel-kiosk/internal/web"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	statusStyle = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	tiltStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// renderFeed lays out the status feed as text.
func renderFeed(feed web.Feed) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Fuel Kiosk"))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(feed.Status))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total: %.2f L / Avg price: %s\n", feed.TotalLiters, web.FormatPrice(feed.AvgPrice))
	fmt.Fprintf(&b, "Spent: %s   Normal: %d   Tilt: %d\n\n", web.FormatPrice(feed.TotalSpent), feed.Normal, feed.Tilt)

	if len(feed.Labels) == 0 {
		b.WriteString(dimStyle.Render("no sessions yet"))
		return b.String()
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-8s %-7s %8s %9s", "Session", "Type", "Liters", "Price")))
	for i := range feed.Labels {
		row := fmt.Sprintf("%-8s %-7s %8.2f %9s", feed.Labels[i], feed.Types[i], feed.Liters[i], feed.Prices[i])
		if feed.Types[i] == "Tilt" {
			row = tiltStyle.Render(row)
		}
		b.WriteString("\n")
		b.WriteString(row)
	}
	return b.String()
}
