package tui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/search"
)

// Lines per result item in the list view (title + subtitle + blank separator).
const resultItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

type browserModel struct {
	query   string
	results []model.SearchResult
	weights search.Weights

	listViewport   viewport.Model
	detailViewport viewport.Model
	view           viewState
	cursor         int
	width          int
	height         int
	ready          bool
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browserModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "o":
		if r, ok := m.selected(); ok {
			openURL(r.Job.ApplyURL)
		}
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	var cmd tea.Cmd
	m.listViewport, cmd = m.listViewport.Update(msg)
	return m, cmd
}

func (m browserModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if r, ok := m.selected(); ok {
			openURL(r.Job.ApplyURL)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m browserModel) selected() (model.SearchResult, bool) {
	if len(m.results) == 0 {
		return model.SearchResult{}, false
	}
	return m.results[m.cursor], true
}

func (m *browserModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(len(m.results)-1, 0))
}

func (m *browserModel) ensureCursorVisible() {
	cursorTop := m.cursor * resultItemHeight
	cursorBottom := cursorTop + resultItemHeight - 1

	if cursorTop < m.listViewport.YOffset {
		m.listViewport.SetYOffset(cursorTop)
	} else if cursorBottom >= m.listViewport.YOffset+m.listViewport.Height {
		m.listViewport.SetYOffset(cursorBottom - m.listViewport.Height + 1)
	}
}

func (m browserModel) openDetailView() (tea.Model, tea.Cmd) {
	if len(m.results) == 0 {
		return m, nil
	}
	m.view = viewDetail
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m, nil
}

func (m *browserModel) recalcLayout() {
	// Border top/bottom (2) + header (1) + status bar (1) = 4 lines overhead.
	paneWidth := max(m.width-2, 20)
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.listViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.listViewport.Width = paneWidth
		m.listViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browserModel) recalcContent() {
	m.listViewport.SetContent(renderResults(m.results, m.cursor))
}

func (m browserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browserModel) viewList() string {
	header := headerStyle.Render(fmt.Sprintf(" %q — %d results", m.query, len(m.results)))
	pane := borderStyle.Width(m.listViewport.Width).Render(m.listViewport.View())

	statusText := fmt.Sprintf(" weights vec %.1f kw %.1f fresh %.1f    ↑/↓ cursor  Enter detail  o apply  q quit",
		m.weights.Vector, m.weights.Keyword, m.weights.Freshness)
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return header + "\n" + pane + "\n" + statusBar
}

func (m browserModel) viewDetail() string {
	title := detailTitleStyle.Render("Job Details")
	content := borderStyle.Width(m.width - 2).Render(m.detailViewport.View())
	statusBar := statusBarStyle.Width(m.width).Render(" o apply  esc/backspace back  ↑/↓ scroll  q quit")
	return title + "\n" + content + "\n" + statusBar
}

func (m browserModel) renderDetail() string {
	r, ok := m.selected()
	if !ok {
		return "  (no results)"
	}
	j := r.Job
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Title", j.Title)
	addField("Company", j.Company)
	addField("Location", j.Location)
	addField("Workplace", j.Workplace)
	addField("Type", j.EmploymentType)
	addField("Salary", formatSalary(j.SalaryMin, j.SalaryMax))
	if j.MinExperience != nil {
		addField("Experience", fmt.Sprintf("%d+ years", *j.MinExperience))
	}
	if len(j.Skills) > 0 {
		addField("Skills", strings.Join(j.Skills, ", "))
	}
	if j.PostedAt != nil {
		addField("Posted", j.PostedAt.Format("2006-01-02"))
	}
	addField("Source", j.Source)
	addField("Apply URL", j.ApplyURL)

	b.WriteByte('\n')
	addField("Score", fmt.Sprintf("%.3f (vec %.2f  kw %.2f  fresh %.2f)",
		r.Combined, r.VectorScore, r.KeywordScore, r.Freshness))

	wrapWidth := max(m.width-8, 20)
	if j.Description != "" {
		label := "── Description "
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		b.WriteByte('\n')
		b.WriteString(dividerStyle.Render(label+fill) + "\n\n")
		b.WriteString(bodyStyle.Render(wordWrap(j.Description, wrapWidth)) + "\n")
	}

	return b.String()
}

func renderResults(results []model.SearchResult, cursor int) string {
	if len(results) == 0 {
		return "  (no results)"
	}

	var b strings.Builder
	for i, r := range results {
		titleSt := titleStyle
		subtitleSt := subtitleStyle
		prefix := "  "
		if i == cursor {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(r.Job.Title))
		b.WriteString("  ")
		b.WriteString(scoreStyle.Render(fmt.Sprintf("%.3f", r.Combined)))
		b.WriteByte('\n')

		parts := []string{r.Job.Company}
		if r.Job.Location != "" {
			parts = append(parts, r.Job.Location)
		}
		if salary := formatSalary(r.Job.SalaryMin, r.Job.SalaryMax); salary != "" {
			parts = append(parts, salary)
		}
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(strings.Join(parts, " · ")))
		b.WriteByte('\n')

		if i < len(results)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatSalary(minSalary, maxSalary *float64) string {
	switch {
	case minSalary != nil && maxSalary != nil:
		return fmt.Sprintf("$%.0fk - $%.0fk", *minSalary/1000, *maxSalary/1000)
	case minSalary != nil:
		return fmt.Sprintf("from $%.0fk", *minSalary/1000)
	case maxSalary != nil:
		return fmt.Sprintf("up to $%.0fk", *maxSalary/1000)
	default:
		return ""
	}
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	if url == "" {
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the interactive result browser for one query.
func Run(query string, results []model.SearchResult, weights search.Weights) error {
	m := browserModel{
		query:   query,
		results: results,
		weights: weights,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
