// Package picker is the interactive extension selector used when a command
// is given no ids on the command line.
package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxVisibleItems = 10

// Item is one selectable extension
type Item struct {
	ID       string // owner/name
	Label    string
	Detail   string // version, type; rendered dimmed
	Selected bool
}

// Model is the Bubble Tea model for the multi-select extension picker
type Model struct {
	title     string
	items     []Item
	cursor    int // index into the filtered view
	offset    int
	selected  map[string]bool
	filter    textinput.Model
	filtering bool
	done      bool
	quitting  bool
}

// New creates a picker model
func New(title string, items []Item) Model {
	selected := make(map[string]bool)
	for _, item := range items {
		if item.Selected {
			selected[item.ID] = true
		}
	}

	ti := textinput.New()
	ti.Placeholder = "filter by id or name"
	ti.CharLimit = 60
	ti.Width = 40

	return Model{
		title:    title,
		items:    items,
		selected: selected,
		filter:   ti,
	}
}

// Selected returns the selected ids in item order
func (m Model) Selected() []string {
	var result []string
	for _, item := range m.items {
		if m.selected[item.ID] {
			result = append(result, item.ID)
		}
	}
	return result
}

// IsQuitting returns true if the user quit without confirming
func (m Model) IsQuitting() bool {
	return m.quitting
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// visible returns the items matching the filter
func (m Model) visible() []Item {
	query := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if query == "" {
		return m.items
	}
	var out []Item
	for _, item := range m.items {
		if strings.Contains(strings.ToLower(item.ID), query) ||
			strings.Contains(strings.ToLower(item.Label), query) {
			out = append(out, item)
		}
	}
	return out
}

func (m *Model) clamp() {
	n := len(m.visible())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+maxVisibleItems {
		m.offset = m.cursor - maxVisibleItems + 1
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.filtering {
		switch {
		case key.Matches(keyMsg, keys.Escape):
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
		case key.Matches(keyMsg, keys.Confirm):
			m.filtering = false
			m.filter.Blur()
		default:
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.cursor, m.offset = 0, 0
			return m, cmd
		}
		m.clamp()
		return m, nil
	}

	view := m.visible()
	switch {
	case key.Matches(keyMsg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(keyMsg, keys.Filter):
		m.filtering = true
		cmd := m.filter.Focus()
		return m, cmd

	case key.Matches(keyMsg, keys.Up):
		m.cursor--

	case key.Matches(keyMsg, keys.Down):
		m.cursor++

	case key.Matches(keyMsg, keys.Toggle):
		if len(view) > 0 {
			id := view[m.cursor].ID
			m.selected[id] = !m.selected[id]
		}

	case key.Matches(keyMsg, keys.All):
		all := true
		for _, item := range view {
			if !m.selected[item.ID] {
				all = false
				break
			}
		}
		for _, item := range view {
			m.selected[item.ID] = !all
		}

	case key.Matches(keyMsg, keys.Confirm):
		m.done = true
		return m, tea.Quit
	}

	m.clamp()
	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	if m.done || m.quitting {
		return ""
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cursorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	dimStyle := lipgloss.NewStyle().Faint(true)

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d selected)", len(m.Selected()))))
	b.WriteString("\n")

	if m.filtering || m.filter.Value() != "" {
		b.WriteString("/ " + m.filter.View() + "\n")
	}
	b.WriteString("\n")

	view := m.visible()
	if len(view) == 0 {
		b.WriteString(dimStyle.Render("  (no matching extensions)"))
		b.WriteString("\n")
	}

	end := min(m.offset+maxVisibleItems, len(view))
	if m.offset > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ↑ %d more", m.offset)) + "\n")
	}
	for i := m.offset; i < end; i++ {
		item := view[i]
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		checked := "[ ]"
		if m.selected[item.ID] {
			checked = selectedStyle.Render("[x]")
		}
		line := fmt.Sprintf("%s%s %s", cursor, checked, item.Label)
		if item.Detail != "" {
			line += " " + dimStyle.Render(item.Detail)
		}
		b.WriteString(line + "\n")
	}
	if end < len(view) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ↓ %d more", len(view)-end)) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("space: toggle • a: all/none • /: filter • enter: confirm • q: quit"))
	return b.String()
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	All     key.Binding
	Filter  key.Binding
	Escape  key.Binding
	Confirm key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k")),
	Down:    key.NewBinding(key.WithKeys("down", "j")),
	Toggle:  key.NewBinding(key.WithKeys(" ")),
	All:     key.NewBinding(key.WithKeys("a")),
	Filter:  key.NewBinding(key.WithKeys("/")),
	Escape:  key.NewBinding(key.WithKeys("esc")),
	Confirm: key.NewBinding(key.WithKeys("enter")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// Run shows the picker and returns the confirmed selection, or nil if the
// user quit.
func Run(title string, items []Item) ([]string, error) {
	finalModel, err := tea.NewProgram(New(title, items)).Run()
	if err != nil {
		return nil, err
	}

	fm := finalModel.(Model)
	if fm.IsQuitting() {
		return nil, nil
	}
	return fm.Selected(), nil
}
