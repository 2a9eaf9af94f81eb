package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// renderTable writes rows as a bordered table. The renderer inspects w, so
// output to pipes and buffers carries no escape sequences.
func renderTable(w io.Writer, noColor bool, headers []string, rows [][]string) error {
	renderer := lipgloss.NewRenderer(w)
	headerStyle := renderer.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := renderer.NewStyle().Padding(0, 1)
	borderStyle := renderer.NewStyle().Foreground(lipgloss.Color("240"))
	if noColor {
		headerStyle = renderer.NewStyle().Padding(0, 1)
		borderStyle = renderer.NewStyle()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// printListing renders a list according to the global output flags.
func printListing(deps commandDeps, payload any, headers []string, rows [][]string) error {
	if deps.globals.JSON {
		return printJSON(deps.out, payload)
	}
	if deps.globals.Quiet {
		return nil
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(deps.out, "no records")
		return err
	}
	return renderTable(deps.out, deps.globals.NoColor, headers, rows)
}

func printMessage(deps commandDeps, payload any, format string, args ...any) error {
	if deps.globals.JSON {
		return printJSON(deps.out, payload)
	}
	if deps.globals.Quiet {
		return nil
	}
	_, err := fmt.Fprintf(deps.out, format+"\n", args...)
	return err
}
