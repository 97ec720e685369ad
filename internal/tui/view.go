package tui

import (
	"fmt"
	"strings"

	"taskboard/internal/model"
	"taskboard/internal/statusutil"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

const (
	defaultWidth   = 100
	minColumnWidth = 16
)

func (m boardModel) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	var b strings.Builder
	b.WriteString(m.renderColumns(width))
	b.WriteString("\n")

	if m.showDetail {
		if t, ok := m.selected(); ok {
			b.WriteString(styleDetail.Width(width).Render(m.renderDetail(t, width)))
			b.WriteString("\n")
		}
	}
	if m.adding {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.message != "" {
		b.WriteString(styleMessage.Render(m.message))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m boardModel) renderColumns(width int) string {
	if len(m.cols) == 0 {
		return styleMuted.Render("(no buckets)")
	}
	// Border plus padding take 4 cells per column.
	colWidth := width/len(m.cols) - 4
	if colWidth < minColumnWidth {
		colWidth = minColumnWidth
	}
	maxRows := 0
	if m.height > 0 {
		maxRows = m.height - 8
		if m.showDetail {
			maxRows -= 8
		}
		if maxRows < 3 {
			maxRows = 3
		}
	}

	rendered := make([]string, 0, len(m.cols))
	for ci, c := range m.cols {
		focused := ci == m.col
		header := fmt.Sprintf("%s (%d)", statusutil.Label(c.bucket), len(c.tasks))
		hs := styleHeader
		if focused {
			hs = styleHeaderFocus
		}
		lines := []string{hs.Render(xansi.Truncate(header, colWidth, "…"))}

		start, end := visibleRange(len(c.tasks), m.row, maxRows, focused)
		if start > 0 {
			lines = append(lines, styleMuted.Render(fmt.Sprintf("↑ %d more", start)))
		}
		for ri := start; ri < end; ri++ {
			lines = append(lines, m.renderCard(c.tasks[ri], colWidth, focused && ri == m.row))
		}
		if end < len(c.tasks) {
			lines = append(lines, styleMuted.Render(fmt.Sprintf("↓ %d more", len(c.tasks)-end)))
		}
		if len(c.tasks) == 0 {
			lines = append(lines, styleMuted.Render("(empty)"))
		}

		box := styleColumn
		if focused {
			box = styleColumnFocus
		}
		rendered = append(rendered, box.Width(colWidth).Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// visibleRange returns the slice of rows to draw so that the selected row (in the
// focused column) stays on screen. max <= 0 means unlimited.
func visibleRange(n, selected, max int, focused bool) (int, int) {
	if max <= 0 || n <= max {
		return 0, n
	}
	start := 0
	if focused && selected >= max {
		start = selected - max + 1
	}
	return start, start + max
}

func (m boardModel) renderCard(t model.Task, width int, selected bool) string {
	marker := " "
	if t.Sync != nil {
		switch t.Sync.State {
		case model.SyncSyncing:
			marker = m.spinner.View()
		case model.SyncError:
			marker = styleErrorMark.Render("!")
		}
	}
	title := xansi.Truncate(t.Title, width-2, "…")
	st := styleCard
	if selected {
		st = styleCardSelected
	}
	return marker + " " + st.Render(title)
}

func (m boardModel) renderDetail(t model.Task, width int) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(t.Title))
	b.WriteString("\n")

	meta := []string{statusutil.Label(t.Status)}
	if t.Sync != nil {
		switch t.Sync.State {
		case model.SyncSyncing:
			meta = append(meta, "saving…")
		case model.SyncError:
			meta = append(meta, styleErrorMark.Render("not saved (r to retry, x to discard)"))
		}
	} else {
		meta = append(meta, t.ID)
	}
	if len(t.Tags) > 0 {
		meta = append(meta, "#"+strings.Join(t.Tags, " #"))
	}
	b.WriteString(styleMuted.Render(strings.Join(meta, " · ")))

	if desc := RenderMarkdown(t.Description, width); desc != "" {
		b.WriteString("\n")
		b.WriteString(desc)
	}
	return b.String()
}
