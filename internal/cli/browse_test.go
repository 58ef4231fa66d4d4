package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/internal/storage"
	"github.com/valter-silva-au/knc/pkg/models"
)

func newBrowseFixture(t *testing.T) (browseModel, *fakeTester) {
	t.Helper()
	reg := core.NewConfigRegistry(storage.NewMemoryKVStore(), core.RegistryOptions{Seed: []models.Config{
		sampleWorkflow("wf_1", "MRP run", true, "planning"),
		sampleWorkflow("wf_2", "Demand sensing", false),
		sampleAgent("agent_1", "Supply assistant"),
	}})
	tester := &fakeTester{results: map[string]models.TestResult{}}
	m := newBrowseModel(reg, tester)
	m.width, m.height = 120, 40
	return m, tester
}

// step applies msg and runs the returned command once, feeding its message
// back into the model.
func step(t *testing.T, m browseModel, msg tea.Msg) browseModel {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(browseModel)
	if cmd != nil {
		if out := cmd(); out != nil {
			next, _ = m.Update(out)
			m = next.(browseModel)
		}
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// toTab moves to the tab showing variant v.
func toTab(t *testing.T, m browseModel, v models.ConfigVariant) browseModel {
	t.Helper()
	for i := 0; i < len(models.AllVariants) && m.variant() != v; i++ {
		m = step(t, m, key("tab"))
	}
	if m.variant() != v {
		t.Fatalf("could not reach the %s tab", v)
	}
	return m
}

func ids(cfgs []models.Config) string {
	out := make([]string, len(cfgs))
	for i, c := range cfgs {
		out[i] = c.Base().ID
	}
	return strings.Join(out, ",")
}

func TestBrowseModel_InitLoadsFirstTab(t *testing.T) {
	m, _ := newBrowseFixture(t)
	if !m.loading {
		t.Error("model should start loading")
	}

	next, _ := m.Update(m.Init()())
	m = next.(browseModel)
	if m.loading {
		t.Error("loading should clear after configs arrive")
	}
	if m.variant() != models.VariantKnowledgeNetwork || len(m.configs) != 0 {
		t.Errorf("first tab should be an empty knowledge_network list, got %s", ids(m.configs))
	}
}

func TestBrowseModel_Tabs(t *testing.T) {
	m, _ := newBrowseFixture(t)

	m = toTab(t, m, models.VariantWorkflow)
	if ids(m.configs) != "wf_1,wf_2" {
		t.Errorf("workflow tab = %s", ids(m.configs))
	}

	m = step(t, m, key("shift+tab"))
	if m.variant() != models.VariantAgent || ids(m.configs) != "agent_1" {
		t.Errorf("shift+tab should go back to agents, got %s %s", m.variant(), ids(m.configs))
	}

	// Wraps around from the last tab.
	m = toTab(t, m, models.VariantWorkflow)
	m = step(t, m, key("tab"))
	if m.activeTab != 0 {
		t.Errorf("tab should wrap to the first variant, got %d", m.activeTab)
	}
}

func TestBrowseModel_CursorBounds(t *testing.T) {
	m, _ := newBrowseFixture(t)
	m = toTab(t, m, models.VariantWorkflow)

	m = step(t, m, key("k"))
	if m.cursor != 0 {
		t.Errorf("cursor should not go above 0, got %d", m.cursor)
	}
	m = step(t, m, key("j"))
	m = step(t, m, key("j"))
	if m.cursor != 1 {
		t.Errorf("cursor should stop at the last row, got %d", m.cursor)
	}
	if m.selected().Base().ID != "wf_2" {
		t.Errorf("selected = %s", m.selected().Base().ID)
	}
}

func TestBrowseModel_Search(t *testing.T) {
	m, _ := newBrowseFixture(t)
	m = toTab(t, m, models.VariantWorkflow)

	m = step(t, m, key("/"))
	if !m.searching {
		t.Fatal("/ should start search mode")
	}
	for _, r := range "plan" {
		m = step(t, m, key(string(r)))
	}
	if m.term != "plan" || ids(m.configs) != "wf_1" {
		t.Errorf("term %q matched %s, want wf_1", m.term, ids(m.configs))
	}

	m = step(t, m, key("backspace"))
	if m.term != "pla" {
		t.Errorf("backspace should drop a rune, term = %q", m.term)
	}

	m = step(t, m, key("enter"))
	if m.searching || m.term != "pla" {
		t.Errorf("enter should keep the term and leave search mode")
	}

	m = step(t, m, key("/"))
	m = step(t, m, key("esc"))
	if m.searching || m.term != "" || ids(m.configs) != "wf_1,wf_2" {
		t.Errorf("esc should clear the search, got term %q and %s", m.term, ids(m.configs))
	}
}

func TestBrowseModel_StatusFilter(t *testing.T) {
	m, _ := newBrowseFixture(t)
	m = toTab(t, m, models.VariantWorkflow)

	m = step(t, m, key("f"))
	if m.statusFilter() != models.StatusEnabled || ids(m.configs) != "wf_1" {
		t.Errorf("enabled filter = %s", ids(m.configs))
	}
	m = step(t, m, key("f"))
	if m.statusFilter() != models.StatusDisabled || ids(m.configs) != "wf_2" {
		t.Errorf("disabled filter = %s", ids(m.configs))
	}
	m = step(t, m, key("f"))
	if m.statusFilter() != models.StatusAll {
		t.Errorf("filter should cycle back to all, got %s", m.statusFilter())
	}
}

func TestBrowseModel_Toggle(t *testing.T) {
	m, _ := newBrowseFixture(t)
	m = toTab(t, m, models.VariantWorkflow)

	m = step(t, m, key(" "))
	if m.notice != "wf_1 disabled" {
		t.Errorf("notice = %q", m.notice)
	}
	// The reload command after toggling is not run by step; run it here.
	next, cmd := m.Update(toggledMsg{cfg: sampleWorkflow("wf_1", "MRP run", false)})
	m = next.(browseModel)
	next, _ = m.Update(cmd())
	m = next.(browseModel)
	if m.configs[0].Base().Enabled {
		t.Error("wf_1 should show as disabled after reload")
	}
}

func TestBrowseModel_Test(t *testing.T) {
	m, tester := newBrowseFixture(t)
	m = toTab(t, m, models.VariantAgent)
	tester.results["agent_1"] = models.TestResult{Success: false, Message: "agent not found", StatusCode: 404}

	next, cmd := m.Update(key("t"))
	m = next.(browseModel)
	if !m.testing["agent_1"] {
		t.Fatal("agent_1 should be marked as testing")
	}
	if !strings.Contains(m.View(), "testing...") {
		t.Error("view should show the pending test")
	}

	next, _ = m.Update(cmd())
	m = next.(browseModel)
	if m.testing["agent_1"] {
		t.Error("pending flag should clear once the result arrives")
	}
	if m.notice != "agent_1 failed: agent not found" {
		t.Errorf("notice = %q", m.notice)
	}
	if !strings.Contains(m.View(), "FAIL") {
		t.Error("view should show the failed result")
	}
}

func TestBrowseModel_NoSelection(t *testing.T) {
	m, tester := newBrowseFixture(t)
	m = step(t, m, m.Init()())

	for _, k := range []string{" ", "t"} {
		if _, cmd := m.Update(key(k)); cmd != nil {
			t.Errorf("%q on an empty tab should do nothing", k)
		}
	}
	if len(tester.tested) != 0 {
		t.Error("nothing should be tested")
	}
}

func TestBrowseModel_Quit(t *testing.T) {
	m, _ := newBrowseFixture(t)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestBrowseModel_View(t *testing.T) {
	m, _ := newBrowseFixture(t)

	zero := newBrowseModel(m.registry, nil)
	if zero.View() != "Loading..." {
		t.Errorf("view before the window size = %q", zero.View())
	}

	m = toTab(t, m, models.VariantWorkflow)
	view := m.View()
	for _, want := range []string{"knc configurations", "workflow", "> wf_1", "MRP run", "off", "status: all", "q: quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m = step(t, m, key("/"))
	for _, r := range "zzz" {
		m = step(t, m, key(string(r)))
	}
	if !strings.Contains(m.View(), "No configurations match.") {
		t.Errorf("empty search should say so:\n%s", m.View())
	}
}

func TestBrowseModel_WindowSize(t *testing.T) {
	m, _ := newBrowseFixture(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(browseModel)
	if m.width != 80 || m.height != 24 {
		t.Errorf("size = %dx%d", m.width, m.height)
	}
}

func TestBrowseCmd_NilRegistry(t *testing.T) {
	orig := Registry
	defer func() { Registry = orig }()
	Registry = nil

	if err := browseCmd.RunE(browseCmd, nil); err == nil {
		t.Fatal("expected error with nil registry")
	}
}
