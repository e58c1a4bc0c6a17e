package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/valentindosimont/ccem/internal/daemon"
	"github.com/valentindosimont/ccem/internal/tui/messages"
	"github.com/valentindosimont/ccem/internal/usage"
)

// Options wires optional collaborators into the dashboard.
type Options struct {
	// Cached returns the persisted snapshot shown before the first pass.
	Cached func() (usage.UsageStats, bool)
	// OnSnapshot is called with every completed snapshot, off the UI loop.
	OnSnapshot func(passID string, stats usage.UsageStats)
	Now        func() time.Time
}

// Model is the usage dashboard Bubbletea model
type Model struct {
	// Dependencies
	refresher *daemon.Refresher
	monitor   *daemon.Monitor
	opts      Options

	// UI state
	width        int
	height       int
	spinner      spinner.Model
	showActivity bool
	activityLog  []ActivityEntry

	// Snapshot state
	stats     *usage.UsageStats
	stale     bool
	running   bool
	passID    string
	lastError error
}

// ActivityEntry represents a log entry
type ActivityEntry struct {
	Time    time.Time
	Message string
}

// New creates the dashboard. monitor may be nil.
func New(refresher *daemon.Refresher, monitor *daemon.Monitor, opts Options) *Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statStyle

	m := &Model{
		refresher: refresher,
		monitor:   monitor,
		opts:      opts,
		spinner:   s,
	}
	if opts.Cached != nil {
		if stats, ok := opts.Cached(); ok {
			m.stats = &stats
			m.stale = true
		}
	}
	return m
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.triggerCmd(),
		m.listenForEvents(),
		m.listenForChanges(),
	)
}

func (m *Model) triggerCmd() tea.Cmd {
	return func() tea.Msg {
		return messages.PassTriggeredMsg{PassID: m.refresher.Trigger()}
	}
}

func (m *Model) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.refresher.Events()
		if !ok {
			return nil
		}
		return messages.PassEventMsg{Event: event}
	}
}

func (m *Model) listenForChanges() tea.Cmd {
	if m.monitor == nil {
		return nil
	}
	return func() tea.Msg {
		<-m.monitor.Changes()
		return messages.FilesChangedMsg{}
	}
}

// Update handles incoming messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			cmds = append(cmds, m.triggerCmd())
		case "a":
			m.showActivity = !m.showActivity
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case messages.PassTriggeredMsg:
		if msg.PassID != "" {
			m.passID = msg.PassID
			m.running = true
		}

	case messages.FilesChangedMsg:
		m.addActivity("session logs changed")
		cmds = append(cmds, m.triggerCmd(), m.listenForChanges())

	case messages.PassEventMsg:
		cmds = append(cmds, m.handlePassEvent(msg.Event), m.listenForEvents())

	case messages.ArchivedMsg:
		m.addActivity("pass %s archived", shortID(msg.PassID))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handlePassEvent(ev daemon.Event) tea.Cmd {
	var cmd tea.Cmd
	switch ev.Type {
	case daemon.EventPassStarted:
		m.addActivity("pass %s started", shortID(ev.PassID))
	case daemon.EventSnapshot:
		stats := ev.Stats
		m.stats = &stats
		m.stale = false
		m.lastError = nil
		if ev.PassID == m.refresher.Current() {
			m.running = false
		}
		cmd = m.archiveCmd(ev.PassID, stats)
		m.addActivity("pass %s completed", shortID(ev.PassID))
	case daemon.EventAborted:
		m.addActivity("pass %s superseded", shortID(ev.PassID))
	case daemon.EventFailed:
		m.lastError = ev.Err
		if ev.PassID == m.refresher.Current() {
			m.running = false
		}
		m.addActivity("pass %s failed: %v", shortID(ev.PassID), ev.Err)
	}
	return cmd
}

func (m *Model) archiveCmd(passID string, stats usage.UsageStats) tea.Cmd {
	if m.opts.OnSnapshot == nil {
		return nil
	}
	fn := m.opts.OnSnapshot
	return func() tea.Msg {
		fn(passID, stats)
		return messages.ArchivedMsg{PassID: passID}
	}
}

func (m *Model) addActivity(format string, args ...interface{}) {
	entry := ActivityEntry{
		Time:    m.opts.Now(),
		Message: fmt.Sprintf(format, args...),
	}

	m.activityLog = append([]ActivityEntry{entry}, m.activityLog...)
	if len(m.activityLog) > 100 {
		m.activityLog = m.activityLog[:100]
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
