package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/render"
)

// Panel shows the latest fragment of one category.
type Panel struct {
	category model.Category
	fragment render.Fragment
	maxRows  int

	updates   int
	units     int
	updatedAt time.Time
	flash     bool

	width  int
	height int
}

// NewPanel creates an empty panel. maxRows caps the rows kept across
// partial updates; 0 keeps everything.
func NewPanel(cat model.Category, maxRows int) *Panel {
	return &Panel{
		category: cat,
		maxRows:  maxRows,
		fragment: render.Fragment{Title: cat.Title()},
	}
}

// Apply merges an update into the panel. Full updates replace the content;
// partial updates prepend their rows.
func (p *Panel) Apply(u render.Update) {
	switch {
	case u.Mode == render.ModePartial && len(p.fragment.Columns) > 0:
		rows := make([][]string, 0, len(u.Fragment.Rows)+len(p.fragment.Rows))
		rows = append(rows, u.Fragment.Rows...)
		rows = append(rows, p.fragment.Rows...)
		p.fragment.Rows = rows
	default:
		p.fragment = u.Fragment
	}
	if p.maxRows > 0 && len(p.fragment.Rows) > p.maxRows {
		p.fragment.Rows = p.fragment.Rows[:p.maxRows]
	}
	if p.fragment.Title == "" {
		p.fragment.Title = p.category.Title()
	}

	p.updates++
	p.units += u.Count
	p.updatedAt = u.FlushedAt
	if p.updatedAt.IsZero() {
		p.updatedAt = time.Now()
	}
	p.flash = true
}

// Rows returns the rows currently shown.
func (p *Panel) Rows() [][]string {
	return p.fragment.Rows
}

// Updates returns how many updates the panel has applied.
func (p *Panel) Updates() int {
	return p.updates
}

// SetSize sets the panel dimensions.
func (p *Panel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// ClearFlash resets the updated highlight.
func (p *Panel) ClearFlash() {
	p.flash = false
}

// View renders the panel.
func (p *Panel) View() string {
	var content string
	if len(p.fragment.Columns) == 0 {
		content = MutedStyle.Render("Waiting for data...")
	} else {
		content = p.renderTable()
	}

	footer := MutedStyle.Render(fmt.Sprintf("%d updates, %d units", p.updates, p.units))
	if !p.updatedAt.IsZero() {
		footer += MutedStyle.Render(" · " + p.updatedAt.Format("15:04:05"))
	}

	style := PanelStyle
	if p.flash {
		style = UpdatedPanelStyle
	}

	body := lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(p.fragment.Title), content, footer)
	if p.width > 2 && p.height > 2 {
		style = style.Width(p.width - 2).Height(p.height - 2).MaxHeight(p.height)
	}
	return style.Render(body)
}

func (p *Panel) renderTable() string {
	rows := p.fragment.Rows
	if visible := p.height - 7; p.height > 0 && visible >= 1 && len(rows) > visible {
		rows = rows[:visible]
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(p.fragment.Columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			return CellStyle
		})
	if p.width > 4 {
		t = t.Width(p.width - 4)
	}
	return strings.TrimRight(t.String(), "\n")
}
