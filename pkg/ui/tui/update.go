package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"weibocrawl/pkg/crawler"
	"weibocrawl/pkg/proxypool"
)

// TargetStartMsg is sent when a worker picks up a target
type TargetStartMsg struct {
	Worker int
	Target string
}

// TargetDoneMsg is sent when a target reaches DONE or ABORTED
type TargetDoneMsg struct {
	Outcome crawler.Outcome
}

// PoolStatsMsg carries a proxy pool snapshot
type PoolStatsMsg struct {
	Stats proxypool.Stats
}

// RunDoneMsg is sent once the run has returned
type RunDoneMsg struct {
	Err error
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(10, msg.Width/2-20)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.finished {
			return m, nil
		}
		return m, tickCmd()

	case TargetStartMsg:
		m.startTarget(msg.Worker, msg.Target)
		return m, nil

	case TargetDoneMsg:
		m.finishTarget(msg.Outcome)
		if msg.Outcome.Err != nil {
			m.AddLogMessage("WARN", "Aborted "+msg.Outcome.Target+": "+msg.Outcome.Err.Error())
		}
		return m, nil

	case PoolStatsMsg:
		m.pool = msg.Stats
		return m, nil

	case RunDoneMsg:
		m.finished = true
		m.runErr = msg.Err
		m.active = make(map[int]ActiveTarget)
		if msg.Err != nil {
			m.AddLogMessage("ERROR", "Run failed: "+msg.Err.Error())
		} else {
			m.AddLogMessage("SUCCESS", "Run complete, press q to exit")
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if !m.finished && m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
