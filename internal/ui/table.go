package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows under bold headers with a rounded border.
func (p *Palette) Table(headers []string, rows [][]string) string {
	header := p.title.Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.help).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	return t.String()
}

// Progress renders a "[step/total] message" line.
func (p *Palette) Progress(step, total int, message string) string {
	return p.help.Render(fmt.Sprintf("[%d/%d]", step, total)) + " " + message
}
