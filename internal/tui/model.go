// Package tui is the interactive browser: mailing lists, per-list
// patch feeds, and patch bodies, backed by the cache actors.
package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lkml-tools/patch-hub/internal/cache"
	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/store"
	"github.com/lkml-tools/patch-hub/internal/tui/styles"
)

type view int

const (
	viewLists view = iota
	viewFeed
	viewPatch
)

// Deps collects the collaborators the TUI reads from.
type Deps struct {
	Lists   cache.MailingListCache
	Feeds   cache.FeedCache
	Patches cache.PatchCache
	Seen    *store.SeenStore
	Logger  *slog.Logger
}

// Model is the bubbletea model for the whole application.
type Model struct {
	deps Deps
	keys KeyMap

	view    view
	width   int
	height  int
	spin    spinner.Model
	loading bool
	err     *ErrMsg

	// Lists view
	lists        []domain.MailingList
	listsTotal   int
	listsPage    int
	listsSel     int
	filterActive bool
	filterQuery  string

	// Feed view
	list      string
	feed      []domain.PatchMeta
	feedTotal int
	feedPage  int
	feedSel   int

	// Patch view
	patchID    string
	patchView  viewport.Model
	patchReady bool
}

// NewModel builds the initial model. The first lists page loads on
// Init.
func NewModel(d Deps) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.AccentStyle
	return Model{deps: d, keys: Keys, spin: sp, loading: true}
}

// Run drives the program until quit.
func Run(d Deps) error {
	p := tea.NewProgram(NewModel(d), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, loadListsCmd(m.deps, 0))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.patchView.Width = msg.Width
		m.patchView.Height = msg.Height - 2
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case ErrMsg:
		m.loading = false
		m.err = &msg
		return m, nil

	case ListsLoadedMsg:
		m.loading = false
		m.err = nil
		m.lists = msg.Items
		m.listsTotal = msg.Total
		m.listsPage = msg.Page
		m.listsSel = clampSel(m.listsSel, len(m.visibleLists()))
		return m, nil

	case FeedLoadedMsg:
		m.loading = false
		m.err = nil
		m.view = viewFeed
		m.list = msg.List
		m.feed = msg.Items
		m.feedTotal = msg.Total
		m.feedPage = msg.Page
		m.feedSel = clampSel(m.feedSel, len(m.feed))
		return m, nil

	case PatchLoadedMsg:
		m.loading = false
		m.err = nil
		m.view = viewPatch
		m.patchID = msg.MessageID
		m.patchView = viewport.New(m.width, max(m.height-2, 1))
		m.patchView.SetContent(msg.Body)
		m.patchReady = true
		return m, nil

	case RefreshedMsg:
		return m, m.reloadCmd()

	case InvalidatedMsg:
		m.err = nil
		m.loading = true
		return m, tea.Batch(m.spin.Tick, m.reloadCmd())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterActive {
		return m.handleFilterKey(msg)
	}

	if m.err != nil {
		switch {
		case key.Matches(msg, m.keys.Invalidate):
			m.loading = true
			return m, tea.Batch(m.spin.Tick, invalidateCmd(m.deps, m.view, m.list, m.patchID))
		case key.Matches(msg, m.keys.Back):
			return m.ascend()
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Back):
		return m.ascend()

	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)
		return m, nil

	case key.Matches(msg, m.keys.Left):
		return m.changePage(-1)

	case key.Matches(msg, m.keys.Right):
		return m.changePage(1)

	case key.Matches(msg, m.keys.Enter):
		return m.descend()

	case key.Matches(msg, m.keys.Filter):
		if m.view == viewLists {
			m.filterActive = true
			m.filterQuery = ""
			m.listsSel = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		switch m.view {
		case viewLists:
			return m, tea.Batch(m.spin.Tick, refreshListsCmd(m.deps))
		case viewFeed:
			return m, tea.Batch(m.spin.Tick, refreshFeedCmd(m.deps, m.list))
		default:
			m.loading = false
			return m, nil
		}
	}

	if m.view == viewPatch && m.patchReady {
		var cmd tea.Cmd
		m.patchView, cmd = m.patchView.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEscape:
		m.filterActive = false
		m.filterQuery = ""
		m.listsSel = 0
		return m, nil
	case tea.KeyEnter:
		m.filterActive = false
		return m, nil
	case tea.KeyBackspace:
		if len(m.filterQuery) > 0 {
			runes := []rune(m.filterQuery)
			m.filterQuery = string(runes[:len(runes)-1])
		}
		m.listsSel = 0
		return m, nil
	case tea.KeyRunes:
		m.filterQuery += string(msg.Runes)
		m.listsSel = 0
		return m, nil
	}
	return m, nil
}

// ascend goes back one level; from the lists view it quits.
func (m Model) ascend() (tea.Model, tea.Cmd) {
	m.err = nil
	switch m.view {
	case viewPatch:
		m.view = viewFeed
		m.patchReady = false
		return m, nil
	case viewFeed:
		m.view = viewLists
		m.feed = nil
		m.feedSel = 0
		m.feedPage = 0
		return m, nil
	default:
		return m, tea.Quit
	}
}

func (m Model) descend() (tea.Model, tea.Cmd) {
	switch m.view {
	case viewLists:
		visible := m.visibleLists()
		if m.listsSel >= len(visible) {
			return m, nil
		}
		m.list = visible[m.listsSel].Name
		m.filterQuery = ""
		m.loading = true
		return m, tea.Batch(m.spin.Tick, loadFeedCmd(m.deps, m.list, 0))
	case viewFeed:
		if m.feedSel >= len(m.feed) {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spin.Tick, loadPatchCmd(m.deps, m.list, m.feed[m.feedSel].MessageID))
	}
	return m, nil
}

func (m *Model) moveSelection(delta int) {
	switch m.view {
	case viewLists:
		m.listsSel = clampSel(m.listsSel+delta, len(m.visibleLists()))
	case viewFeed:
		m.feedSel = clampSel(m.feedSel+delta, len(m.feed))
	}
}

func (m Model) changePage(delta int) (tea.Model, tea.Cmd) {
	switch m.view {
	case viewLists:
		page := m.listsPage + delta
		if page < 0 || page*domain.PageSize >= m.listsTotal {
			return m, nil
		}
		m.loading = true
		m.listsSel = 0
		return m, tea.Batch(m.spin.Tick, loadListsCmd(m.deps, page))
	case viewFeed:
		page := m.feedPage + delta
		if page < 0 || page*domain.PageSize >= m.feedTotal {
			return m, nil
		}
		m.loading = true
		m.feedSel = 0
		return m, tea.Batch(m.spin.Tick, loadFeedCmd(m.deps, m.list, page))
	}
	return m, nil
}

func (m Model) reloadCmd() tea.Cmd {
	switch m.view {
	case viewFeed:
		return loadFeedCmd(m.deps, m.list, m.feedPage)
	case viewPatch:
		return loadPatchCmd(m.deps, m.list, m.patchID)
	default:
		return loadListsCmd(m.deps, m.listsPage)
	}
}

func (m Model) visibleLists() []domain.MailingList {
	return filterLists(m.filterQuery, m.lists)
}

func clampSel(sel, n int) int {
	if n == 0 {
		return 0
	}
	if sel < 0 {
		return 0
	}
	if sel >= n {
		return n - 1
	}
	return sel
}

func (m Model) View() string {
	if m.err != nil {
		return m.errorView()
	}
	var body string
	switch m.view {
	case viewLists:
		body = m.listsView()
	case viewFeed:
		body = m.feedView()
	case viewPatch:
		body = m.patchViewBody()
	}
	return body + "\n" + m.statusBar()
}

func (m Model) errorView() string {
	var b strings.Builder
	b.WriteString(styles.ErrorStyle.Render("Error: " + m.err.Error()))
	b.WriteString("\n\n")
	b.WriteString(styles.SubtitleStyle.Render("i invalidate cache · esc back · q quit"))
	return styles.ErrorPanelStyle.Render(b.String())
}

func (m Model) listsView() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Mailing lists"))
	if m.filterActive || m.filterQuery != "" {
		b.WriteString("  " + styles.AccentStyle.Render("/"+m.filterQuery))
	}
	b.WriteString("\n\n")
	visible := m.visibleLists()
	if m.loading && len(visible) == 0 {
		b.WriteString(m.spin.View() + " loading")
		return styles.PanelStyle.Render(b.String())
	}
	for i, item := range visible {
		row := fmt.Sprintf("%-28s %s", item.Name, item.Description)
		if i == m.listsSel {
			b.WriteString(styles.SelectedItemStyle.Render(row))
		} else {
			b.WriteString(styles.NormalItemStyle.Render(row))
		}
		b.WriteByte('\n')
	}
	return styles.PanelStyle.Render(b.String())
}

func (m Model) feedView() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render(m.list))
	b.WriteString("\n\n")
	if m.loading && len(m.feed) == 0 {
		b.WriteString(m.spin.View() + " loading")
		return styles.PanelStyle.Render(b.String())
	}
	for i, item := range m.feed {
		row := fmt.Sprintf("%s  %s  %s",
			item.LastUpdate.UTC().Format(time.DateOnly), item.Title, item.Author)
		switch {
		case i == m.feedSel:
			b.WriteString(styles.SelectedItemStyle.Render(row))
		case m.deps.Seen.IsSeen(m.list, item.MessageID):
			b.WriteString(styles.SeenItemStyle.Render(row))
		default:
			b.WriteString(styles.NormalItemStyle.Render(row))
		}
		b.WriteByte('\n')
	}
	return styles.PanelStyle.Render(b.String())
}

func (m Model) patchViewBody() string {
	if !m.patchReady {
		return styles.PanelStyle.Render(m.spin.View() + " loading")
	}
	return m.patchView.View()
}

func (m Model) statusBar() string {
	var parts []string
	switch m.view {
	case viewLists:
		parts = append(parts, fmt.Sprintf("page %d/%d", m.listsPage+1, pageCount(m.listsTotal)))
	case viewFeed:
		parts = append(parts, fmt.Sprintf("page %d/%d", m.feedPage+1, pageCount(m.feedTotal)))
	case viewPatch:
		parts = append(parts, m.patchID)
	}
	if m.loading {
		parts = append(parts, m.spin.View())
	}
	parts = append(parts, "enter open · esc back · / filter · r refresh · q quit")
	return styles.StatusBarStyle.Render(strings.Join(parts, "  "))
}

func pageCount(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + domain.PageSize - 1) / domain.PageSize
}
