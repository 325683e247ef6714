package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/uxhost/pkg/host"
	"github.com/modoterra/uxhost/pkg/presenter"
)

// Screen identifies what the terminal is showing.
type Screen int

const (
	ScreenLog Screen = iota
	ScreenFlow
)

const (
	headerH = 2
	footerH = 2
)

// App is the root Bubble Tea model. The log screen is the viewing
// surface: every time it becomes visible again (startup, return from the
// flow screen, terminal focus) it re-reads the log.
type App struct {
	backend   Backend
	presenter *presenter.Presenter
	module    *host.Module
	endpoint  string

	rows      []presenter.Row
	screen    Screen
	filtering bool
	filter    textinput.Model
	viewport  viewport.Model
	ready     bool
	width     int
	height    int

	statusMsg string
}

// New creates the TUI model. module may be nil when the embedded module
// is started outside this process; endpoint is shown on the flow screen.
func New(backend Backend, opts presenter.Options, module *host.Module, endpoint string) App {
	fi := textinput.New()
	fi.Placeholder = "filter..."
	fi.CharLimit = 64

	return App{
		backend:   backend,
		presenter: presenter.New(backend, opts),
		module:    module,
		endpoint:  endpoint,
		screen:    ScreenLog,
		filter:    fi,
	}
}

// Init loads the log for the first time.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		refreshCmd(a.presenter),
		tea.SetWindowTitle("uxhost"),
	)
}

// rowsMsg carries freshly presented rows.
type rowsMsg struct{ rows []presenter.Row }

// clearedMsg reports a completed clear.
type clearedMsg struct{}

// moduleExitedMsg reports that the embedded module process ended.
type moduleExitedMsg struct{ err error }

// errorMsg carries an error to display.
type errorMsg struct{ err error }

func refreshCmd(p *presenter.Presenter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		rows, err := p.OnVisible(ctx)
		if err != nil {
			return errorMsg{err}
		}
		return rowsMsg{rows}
	}
}

func clearCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := b.Clear(ctx); err != nil {
			return errorMsg{err}
		}
		return clearedMsg{}
	}
}

func waitModuleCmd(m *host.Module, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return moduleExitedMsg{err: m.Err()}
	}
}

func stopModuleCmd(m *host.Module) tea.Cmd {
	return func() tea.Msg {
		m.Stop(3 * time.Second)
		return nil
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		bodyH := max(a.height-headerH-footerH, 1)
		if !a.ready {
			a.viewport = viewport.New(a.width, bodyH)
			a.ready = true
		} else {
			a.viewport.Width = a.width
			a.viewport.Height = bodyH
		}
		a.syncViewport()
		return a, nil

	case rowsMsg:
		a.rows = msg.rows
		a.statusMsg = fmt.Sprintf("%d events", len(a.rows))
		a.syncViewport()
		a.viewport.GotoTop()
		return a, nil

	case clearedMsg:
		a.statusMsg = "log cleared"
		return a, refreshCmd(a.presenter)

	case moduleExitedMsg:
		if msg.err != nil {
			a.statusMsg = "module exited: " + msg.err.Error()
		} else {
			a.statusMsg = "module finished"
		}
		if a.screen == ScreenFlow {
			return a.showLog()
		}
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.FocusMsg:
		if a.screen == ScreenLog {
			return a, refreshCmd(a.presenter)
		}
		return a, nil

	case tea.BlurMsg:
		a.presenter.OnHidden()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	if a.screen == ScreenFlow {
		switch msg.String() {
		case "esc", "b", "q":
			var stop tea.Cmd
			if a.module.Configured() && a.module.Running() {
				stop = stopModuleCmd(a.module)
			}
			m, refresh := a.showLog()
			return m, tea.Batch(refresh, stop)
		}
		return a, nil
	}

	if a.filtering {
		switch msg.String() {
		case "esc":
			a.filtering = false
			a.filter.SetValue("")
			a.filter.Blur()
			a.syncViewport()
			return a, nil
		case "enter":
			a.filtering = false
			a.filter.Blur()
			return a, nil
		default:
			var cmd tea.Cmd
			a.filter, cmd = a.filter.Update(msg)
			a.syncViewport()
			return a, cmd
		}
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit

	case "o":
		return a.openFlow()

	case "c":
		return a, clearCmd(a.backend)

	case "r":
		return a, refreshCmd(a.presenter)

	case "/":
		a.filtering = true
		a.filter.Focus()
		return a, textinput.Blink

	case "g", "home":
		a.viewport.GotoTop()
		return a, nil

	case "G", "end":
		a.viewport.GotoBottom()
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

// openFlow hides the log and hands the terminal to the flow screen,
// launching the embedded module when one is configured.
func (a App) openFlow() (tea.Model, tea.Cmd) {
	var wait tea.Cmd
	if a.module.Configured() {
		done, err := a.module.Start()
		if err != nil {
			a.statusMsg = "error: " + err.Error()
			return a, nil
		}
		wait = waitModuleCmd(a.module, done)
	}
	a.presenter.OnHidden()
	a.screen = ScreenFlow
	return a, wait
}

func (a App) showLog() (tea.Model, tea.Cmd) {
	a.screen = ScreenLog
	return a, refreshCmd(a.presenter)
}

// visibleRows applies the filter to the presented rows.
func (a App) visibleRows() []presenter.Row {
	q := strings.ToLower(a.filter.Value())
	if q == "" {
		return a.rows
	}
	var filtered []presenter.Row
	for _, r := range a.rows {
		if strings.Contains(strings.ToLower(r.Header), q) ||
			strings.Contains(strings.ToLower(r.Message), q) ||
			strings.Contains(strings.ToLower(r.Meta), q) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func (a *App) syncViewport() {
	if !a.ready {
		return
	}
	a.viewport.SetContent(renderRows(a.visibleRows(), a.width))
}
