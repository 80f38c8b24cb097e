package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"sculptor/internal/diff"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	lightPrimary = lipgloss.Color("#101F38") // Dark Blue
	lightMuted   = lipgloss.Color("#6a737d")
	darkPrimary  = lipgloss.Color("#8BC34A") // Lime Green
	darkMuted    = lipgloss.Color("#8b96a8")

	colorDestructive = lipgloss.Color("#e53935") // Red
	colorSuccess     = lipgloss.Color("#8BC34A") // Lime Green
	colorWarning     = lipgloss.Color("#FFC107") // Yellow
	colorInfo        = lipgloss.Color("#2196F3") // Blue
)

// theme holds the current color scheme
type theme struct {
	Primary lipgloss.Color
	Muted   lipgloss.Color
	IsDark  bool
}

// detectTheme picks dark mode from COLORFGBG or SCULPTOR_DARK_MODE, light otherwise.
func detectTheme() theme {
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		// "foreground;background"; 0-6 and 8 are dark backgrounds
		parts := strings.Split(colorTerm, ";")
		if len(parts) == 2 {
			if bgIdx, err := strconv.Atoi(parts[1]); err == nil {
				if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
					return theme{Primary: darkPrimary, Muted: darkMuted, IsDark: true}
				}
			}
		}
	}
	if os.Getenv("SCULPTOR_DARK_MODE") == "1" {
		return theme{Primary: darkPrimary, Muted: darkMuted, IsDark: true}
	}
	return theme{Primary: lightPrimary, Muted: lightMuted}
}

// styles holds the styled components used by the commands
type styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Digest  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
}

func newStyles() styles {
	t := detectTheme()
	return styles{
		Title: lipgloss.NewStyle().
			Foreground(t.Primary).
			Bold(true),
		Label: lipgloss.NewStyle().
			Foreground(t.Primary).
			Width(8),
		Body:    lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(t.Muted),
		Bold:    lipgloss.NewStyle().Bold(true),
		Digest:  lipgloss.NewStyle().Foreground(colorInfo),
		Success: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colorDestructive).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colorWarning),
	}
}

// table renders static rows with aligned columns.
type table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func newTable(title string, headers ...string) *table {
	return &table{Title: title, Headers: headers}
}

// AddRow adds a row to the table.
func (t *table) AddRow(row ...string) {
	t.Rows = append(t.Rows, row)
}

// View renders the table. An empty table renders as "".
func (t *table) View(s styles) string {
	if len(t.Rows) == 0 {
		return ""
	}

	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(s.Title.Render(t.Title))
		sb.WriteString("\n")
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	// lipgloss Width includes padding
	for i := range widths {
		widths[i] += 2
	}

	headerStyle := s.Bold.Padding(0, 1)
	rowStyle := s.Body.Padding(0, 1)

	for i, h := range t.Headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
		if i < len(t.Headers)-1 {
			sb.WriteString(s.Muted.Render("|"))
		}
	}
	sb.WriteString("\n")

	total := len(t.Headers) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(s.Muted.Render(strings.Repeat("-", total)) + "\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			sb.WriteString(rowStyle.Width(widths[i]).Render(cell))
			if i < len(row)-1 && i < len(widths)-1 {
				sb.WriteString(s.Muted.Render("|"))
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// renderDiff colors a unified diff: additions green, removals red, headers muted.
func renderDiff(s styles, fd *diff.FileDiff) string {
	if fd.Empty() {
		return s.Muted.Render("no differences") + "\n"
	}
	var sb strings.Builder
	for _, line := range strings.SplitAfter(fd.Unified(), "\n") {
		text := strings.TrimSuffix(line, "\n")
		switch {
		case text == "":
			continue
		case strings.HasPrefix(text, "+++"), strings.HasPrefix(text, "---"), strings.HasPrefix(text, "@@"), text == diff.NoNewline:
			sb.WriteString(s.Muted.Render(text))
		case strings.HasPrefix(text, "+"):
			sb.WriteString(s.Success.Render(text))
		case strings.HasPrefix(text, "-"):
			sb.WriteString(s.Error.Render(text))
		default:
			sb.WriteString(text)
		}
		sb.WriteByte('\n')
	}
	added, removed := fd.Stats()
	sb.WriteString(s.Muted.Render(fmt.Sprintf("%d added, %d removed", added, removed)) + "\n")
	return sb.String()
}
