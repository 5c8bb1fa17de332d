// Package report renders run reports and column previews for the terminal.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/JonMunkholm/sheetload/internal/core"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	indentStyle  = lipgloss.NewStyle().PaddingLeft(2)

	statusStyle = map[string]lipgloss.Style{
		"succeeded": successStyle,
		"partial":   warnStyle,
		"failed":    errorStyle,
		"cancelled": infoStyle,
	}
)

const rowFormat = "%-24s %-8s %-24s %6s %6s %6s %10s"

// Run writes a summary of rep to w.
func Run(w io.Writer, rep *core.Report) {
	var b strings.Builder

	status := rep.Status()
	style, ok := statusStyle[status]
	if !ok {
		style = infoStyle
	}

	b.WriteString(titleStyle.Render("sheetload run " + rep.BatchID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  %d file(s), %d loaded, %d failed, %s\n",
		style.Render(strings.ToUpper(status)),
		rep.TotalFiles, rep.Successful(), rep.Failed(),
		rep.Duration().Round(time.Millisecond))

	if rep.Preflight != nil && len(rep.Preflight.MissingOptional) > 0 {
		b.WriteString(warnStyle.Render("missing optional grants: " + strings.Join(rep.Preflight.MissingOptional, ", ")))
		b.WriteString("\n")
	}

	if types := rep.Types(); len(types) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render(fmt.Sprintf(rowFormat, "Type", "Strategy", "Table", "Files", "OK", "Failed", "Rows")))
		b.WriteString("\n")
		for _, name := range types {
			s := rep.PerType[name]
			line := fmt.Sprintf(rowFormat, name, s.Strategy, s.Table,
				strconv.Itoa(s.FilesCount), strconv.Itoa(s.SuccessfulFiles), strconv.Itoa(s.FailedFiles),
				strconv.FormatInt(s.RowsWritten, 10))
			if s.FailedFiles > 0 {
				line = warnStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
			for _, e := range s.Errors {
				b.WriteString(indentStyle.Render(errorStyle.Render(shorten(e))))
				b.WriteString("\n")
			}
		}
	}

	if len(rep.Undetected) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Not processed"))
		b.WriteString("\n")
		for _, f := range rep.Undetected {
			line := fmt.Sprintf("%s: %s", filepath.Base(f.Path), f.User.Message)
			if f.User.Code != "" {
				line += " [" + f.User.Code + "]"
			}
			b.WriteString(indentStyle.Render(errorStyle.Render(line)))
			b.WriteString("\n")
		}
	}

	if len(rep.Skipped) > 0 {
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(fmt.Sprintf("%d file(s) skipped after cancellation", len(rep.Skipped))))
		b.WriteString("\n")
	}

	for _, warning := range rep.Warnings {
		b.WriteString(warnStyle.Render("warning: " + warning))
		b.WriteString("\n")
	}

	io.WriteString(w, b.String())
}

// Preview writes a column comparison to w.
func Preview(w io.Writer, path string, p core.Preview) {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s as %s", filepath.Base(path), p.Type)))
	b.WriteString("\n")
	if p.OK {
		b.WriteString(successStyle.Render(p.Message))
	} else {
		b.WriteString(errorStyle.Render(p.Message))
	}
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-32s %s", "File column", "Loads as")))
	b.WriteString("\n")
	for i, actual := range p.Actual {
		if actual == "" {
			continue
		}
		mapped := p.Mapped[i]
		if slices.Contains(p.Extra, actual) {
			mapped = infoStyle.Render("(ignored)")
		}
		fmt.Fprintf(&b, "%-32s %s\n", actual, mapped)
	}
	for _, missing := range p.Missing {
		b.WriteString(errorStyle.Render(fmt.Sprintf("%-32s %s", "(missing)", missing)))
		b.WriteString("\n")
	}

	io.WriteString(w, b.String())
}

func shorten(s string) string {
	const width = 160
	if len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
