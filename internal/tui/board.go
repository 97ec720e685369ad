package tui

import (
	"strings"

	"taskboard/internal/listcache"
	"taskboard/internal/model"
	"taskboard/internal/optimistic"
	"taskboard/internal/statusutil"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// cacheChangedMsg is delivered whenever the list cache changed.
type cacheChangedMsg struct{}

type boardColumn struct {
	bucket string
	tasks  []model.Task
}

type boardModel struct {
	cache       *listcache.Store
	ctl         Controller
	filter      model.TaskFilter
	key         listcache.Key
	updates     <-chan struct{}
	unsubscribe func()

	cols []boardColumn
	col  int
	row  int

	width  int
	height int

	adding     bool
	input      textinput.Model
	spinner    spinner.Model
	showDetail bool
	message    string

	keys keyMap
	help help.Model
}

func newBoardModel(cache *listcache.Store, ctl Controller, filter model.TaskFilter) boardModel {
	updates, unsubscribe := cache.Subscribe()

	in := textinput.New()
	in.Placeholder = "Title"
	in.CharLimit = 200
	in.Width = 40
	in.Prompt = "New task: "

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = styleSyncing

	m := boardModel{
		cache:       cache,
		ctl:         ctl,
		filter:      filter,
		key:         cache.Ensure(filter),
		updates:     updates,
		unsubscribe: unsubscribe,
		input:       in,
		spinner:     sp,
		keys:        defaultKeyMap(),
		help:        help.New(),
	}
	m.reload()
	return m
}

func (m boardModel) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.updates), m.spinner.Tick)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return cacheChangedMsg{}
	}
}

// reload rebuilds the columns from the cached view, keeping the selection on the
// same task where possible.
func (m *boardModel) reload() {
	selected := m.selectedID()

	buckets := statusutil.Buckets
	if len(m.filter.Statuses) > 0 {
		buckets = m.filter.Statuses
	}
	cols := make([]boardColumn, len(buckets))
	index := map[string]int{}
	for i, b := range buckets {
		cols[i] = boardColumn{bucket: b}
		index[b] = i
	}
	if v, ok := m.cache.Get(m.key); ok {
		for _, t := range v.Tasks {
			if i, ok := index[t.Status]; ok {
				cols[i].tasks = append(cols[i].tasks, t)
			}
		}
	}
	m.cols = cols

	if selected != "" {
		for ci, c := range m.cols {
			for ri, t := range c.tasks {
				if t.ID == selected {
					m.col, m.row = ci, ri
					return
				}
			}
		}
	}
	m.clampSelection()
}

func (m *boardModel) clampSelection() {
	if m.col >= len(m.cols) {
		m.col = len(m.cols) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	n := 0
	if m.col < len(m.cols) {
		n = len(m.cols[m.col].tasks)
	}
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m boardModel) selected() (model.Task, bool) {
	if m.col < 0 || m.col >= len(m.cols) {
		return model.Task{}, false
	}
	tasks := m.cols[m.col].tasks
	if m.row < 0 || m.row >= len(tasks) {
		return model.Task{}, false
	}
	return tasks[m.row], true
}

func (m boardModel) selectedID() string {
	if t, ok := m.selected(); ok {
		return t.ID
	}
	return ""
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case cacheChangedMsg:
		m.reload()
		return m, waitForChange(m.updates)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		return m.updateBoard(msg)
	}
	return m, nil
}

func (m boardModel) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+g":
		m.adding = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	case "enter":
		title := strings.TrimSpace(m.input.Value())
		if title == "" {
			m.message = "title is blank"
			return m, nil
		}
		bucket := m.cols[m.col].bucket
		if _, err := m.ctl.QuickAdd(bucket, title, m.filter, optimistic.Fields{}); err != nil {
			m.message = err.Error()
			return m, nil
		}
		m.adding = false
		m.input.Blur()
		m.input.SetValue("")
		m.message = ""
		// The placeholder is already in the cache; select it.
		m.reload()
		m.row = 0
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m boardModel) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Left):
		m.col--
		m.clampSelection()
	case key.Matches(msg, m.keys.Right):
		m.col++
		m.clampSelection()
	case key.Matches(msg, m.keys.Up):
		m.row--
		m.clampSelection()
	case key.Matches(msg, m.keys.Down):
		m.row++
		m.clampSelection()
	case key.Matches(msg, m.keys.Add):
		if len(m.cols) == 0 {
			return m, nil
		}
		m.adding = true
		m.message = ""
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Retry):
		t, ok := m.selected()
		if !ok || !t.IsOptimistic() {
			m.message = "nothing to retry"
			return m, nil
		}
		if t.Sync.State != model.SyncError {
			m.message = "still syncing"
			return m, nil
		}
		if m.ctl.Retry(t.ID) {
			m.message = "retrying " + t.Title
		}
	case key.Matches(msg, m.keys.Cancel):
		t, ok := m.selected()
		if !ok || !t.IsOptimistic() {
			m.message = "only unsaved tasks can be discarded"
			return m, nil
		}
		m.ctl.Cancel(t.ID)
		m.message = "discarded " + t.Title
	case key.Matches(msg, m.keys.Detail):
		m.showDetail = !m.showDetail
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}
