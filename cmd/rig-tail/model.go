package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
)

// fsChangeMsg is sent when a change is detected near the log file.
type fsChangeMsg struct{}

// tickMsg drives the polling fallback refresh.
type tickMsg time.Time

// contentMsg carries the freshly read log content.
type contentMsg string

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)
)

// model is the rig-tail Bubble Tea model: a viewport over the log file,
// refreshed on filesystem events with a polling safety net.
type model struct {
	logPath  string
	title    string
	vp       viewport.Model
	ready    bool
	follow   bool
	watcher  *fsnotify.Watcher
	lastSize int
}

func newModel(logPath, title string) *model {
	return &model{
		logPath: logPath,
		title:   title,
		follow:  true,
		watcher: initWatcher(filepath.Dir(logPath)),
	}
}

// initWatcher creates a filesystem watcher for the log's directory.
// Returns nil on failure; the viewer falls back to polling only.
func initWatcher(dir string) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil
	}
	return watcher
}

// waitForChange returns a tea.Cmd that blocks on the next watcher event.
func (m *model) waitForChange() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	return func() tea.Msg {
		for {
			select {
			case _, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				return fsChangeMsg{}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

// readLogCmd reads the whole log file. An absent file renders as empty:
// the coordinator may not have started yet.
func (m *model) readLogCmd() tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(m.logPath) //nolint:gosec // operator-supplied path
		if err != nil {
			return contentMsg("")
		}
		return contentMsg(data)
	}
}

// tickCmd returns the polling fallback tick.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.readLogCmd(), m.waitForChange(), tickCmd())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.watcher != nil {
				_ = m.watcher.Close()
			}
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
			return m, nil
		}

	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 1
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - headerHeight - footerHeight
		}
		return m, nil

	case fsChangeMsg:
		return m, tea.Batch(m.readLogCmd(), m.waitForChange())

	case tickMsg:
		return m, tea.Batch(m.readLogCmd(), tickCmd())

	case contentMsg:
		if len(msg) != m.lastSize {
			m.lastSize = len(msg)
			m.vp.SetContent(string(msg))
			if m.follow {
				m.vp.GotoBottom()
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	if !m.ready {
		return "loading..."
	}
	header := titleStyle.Render(m.title)
	status := "following"
	if !m.follow {
		status = "paused (f to follow)"
	}
	footer := statusStyle.Render(status + " | q to quit")
	return header + "\n" + m.vp.View() + "\n" + footer
}
