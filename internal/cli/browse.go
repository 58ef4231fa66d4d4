package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
)

var statusCycle = []models.StatusFilter{models.StatusAll, models.StatusEnabled, models.StatusDisabled}

type browseModel struct {
	registry core.ConfigRegistry
	tester   core.ConnectionTester

	activeTab int
	cursor    int
	width     int
	height    int

	term      string
	searching bool
	status    int

	configs []models.Config
	results map[string]models.TestResult
	testing map[string]bool

	loading bool
	notice  string
	err     error
}

// configsLoadedMsg carries the records of the active tab.
type configsLoadedMsg struct {
	configs []models.Config
	err     error
}

// toggledMsg reports the outcome of toggling a record.
type toggledMsg struct {
	cfg models.Config
	err error
}

// testedMsg carries a connection test result.
type testedMsg struct {
	result models.TestResult
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
	passStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBrowseModel(reg core.ConfigRegistry, tester core.ConnectionTester) browseModel {
	return browseModel{
		registry: reg,
		tester:   tester,
		loading:  true,
		results:  make(map[string]models.TestResult),
		testing:  make(map[string]bool),
	}
}

func (m browseModel) variant() models.ConfigVariant {
	return models.AllVariants[m.activeTab]
}

func (m browseModel) statusFilter() models.StatusFilter {
	return statusCycle[m.status]
}

func (m browseModel) selected() models.Config {
	if m.cursor < 0 || m.cursor >= len(m.configs) {
		return nil
	}
	return m.configs[m.cursor]
}

func (m browseModel) Init() tea.Cmd {
	return m.load()
}

// load searches the active tab with the current term and status filter.
func (m browseModel) load() tea.Cmd {
	reg, variant, term, status := m.registry, m.variant(), m.term, m.statusFilter()
	return func() tea.Msg {
		cfgs, err := reg.Search(variant, term, status)
		return configsLoadedMsg{configs: cfgs, err: err}
	}
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case configsLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.configs = msg.configs
		}
		if m.cursor >= len(m.configs) {
			m.cursor = max(len(m.configs)-1, 0)
		}
		return m, nil

	case toggledMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		state := "disabled"
		if msg.cfg.Base().Enabled {
			state = "enabled"
		}
		m.notice = fmt.Sprintf("%s %s", msg.cfg.Base().ID, state)
		return m, m.load()

	case testedMsg:
		delete(m.testing, msg.result.ConfigID)
		m.results[msg.result.ConfigID] = msg.result
		if msg.result.Success {
			m.notice = fmt.Sprintf("%s: %s", msg.result.ConfigID, msg.result.Message)
		} else {
			m.notice = fmt.Sprintf("%s failed: %s", msg.result.ConfigID, msg.result.Message)
		}
		return m, nil
	}

	return m, nil
}

func (m browseModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "tab", "right", "l":
		m.activeTab = (m.activeTab + 1) % len(models.AllVariants)
		m.cursor = 0
		m.loading = true
		return m, m.load()
	case "shift+tab", "left", "h":
		m.activeTab = (m.activeTab - 1 + len(models.AllVariants)) % len(models.AllVariants)
		m.cursor = 0
		m.loading = true
		return m, m.load()
	case "down", "j":
		if m.cursor < len(m.configs)-1 {
			m.cursor++
		}
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "/":
		m.searching = true
		return m, nil
	case "f":
		m.status = (m.status + 1) % len(statusCycle)
		m.cursor = 0
		return m, m.load()
	case "r":
		m.loading = true
		return m, m.load()
	case " ":
		cfg := m.selected()
		if cfg == nil {
			return m, nil
		}
		reg, id := m.registry, cfg.Base().ID
		return m, func() tea.Msg {
			updated, err := reg.ToggleEnabled(id)
			return toggledMsg{cfg: updated, err: err}
		}
	case "t":
		cfg := m.selected()
		if cfg == nil || m.tester == nil {
			return m, nil
		}
		m.testing[cfg.Base().ID] = true
		tester := m.tester
		return m, func() tea.Msg {
			return testedMsg{result: tester.Test(context.Background(), cfg)}
		}
	}
	return m, nil
}

func (m browseModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		return m, nil
	case tea.KeyEsc:
		m.searching = false
		m.term = ""
	case tea.KeyBackspace:
		if r := []rune(m.term); len(r) > 0 {
			m.term = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.term += string(msg.Runes)
	default:
		return m, nil
	}
	m.cursor = 0
	return m, m.load()
}

func (m browseModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" knc configurations ")

	tabs := make([]string, len(models.AllVariants))
	for i, v := range models.AllVariants {
		if i == m.activeTab {
			tabs[i] = activeTabStyle.Render(string(v))
		} else {
			tabs[i] = tabStyle.Render(string(v))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	search := fmt.Sprintf("search: %s", m.term)
	if m.searching {
		search += "_"
	}
	filterLine := helpStyle.Render(fmt.Sprintf("%s | status: %s", search, m.statusFilter()))

	var body string
	switch {
	case m.err != nil:
		body = failStyle.Render(fmt.Sprintf("Error: %s", m.err))
	case m.loading:
		body = "Loading configurations..."
	default:
		body = m.renderList()
	}

	width := max(m.width-4, 20)
	panel := panelStyle.Width(width).Render(body)

	help := helpStyle.Render("tab: variant | j/k: move | /: search | f: status | space: toggle | t: test | r: refresh | q: quit")
	parts := []string{title, tabBar, filterLine, panel}
	if m.notice != "" {
		parts = append(parts, m.notice)
	}
	parts = append(parts, help)
	return strings.Join(parts, "\n")
}

func (m browseModel) renderList() string {
	if len(m.configs) == 0 {
		return "No configurations match."
	}
	var b strings.Builder
	for i, cfg := range m.configs {
		base := cfg.Base()
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		state := "on "
		if !base.Enabled {
			state = "off"
		}
		line := fmt.Sprintf("%s%-28s %s  %-32s %s", marker, base.ID, state, base.Name, m.resultLabel(base.ID))
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m browseModel) resultLabel(id string) string {
	if m.testing[id] {
		return pendingStyle.Render("testing...")
	}
	r, ok := m.results[id]
	if !ok {
		return ""
	}
	if r.Success {
		return passStyle.Render("ok")
	}
	return failStyle.Render("FAIL")
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse configurations in an interactive terminal view",
	Long: `Launch an interactive terminal view of the configurations, one tab per
variant. Search with /, cycle the status filter with f, toggle the selected
configuration with space and test its connection with t.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		p := tea.NewProgram(newBrowseModel(Registry, Tester), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
