// Package tui is a full-screen dashboard for a running crawl
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"weibocrawl/pkg/crawler"
	"weibocrawl/pkg/proxypool"
)

// TUI drives a Model in a bubbletea program. Its methods may be called from
// any goroutine.
type TUI struct {
	program *tea.Program
}

// NewTUI creates a dashboard for total targets. onQuit is called when the
// user quits before the run has finished.
func NewTUI(total, workers int, onQuit func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(total, workers, onQuit)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &TUI{program: tea.NewProgram(&model, opts...)}
}

// Start runs the program until the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) TargetStarted(worker int, target string) {
	t.Send(TargetStartMsg{Worker: worker, Target: target})
}

func (t *TUI) TargetFinished(out crawler.Outcome) {
	t.Send(TargetDoneMsg{Outcome: out})
}

func (t *TUI) UpdatePool(stats proxypool.Stats) {
	t.Send(PoolStatsMsg{Stats: stats})
}

// RunFinished marks the run as over; the dashboard stays up until q
func (t *TUI) RunFinished(err error) {
	t.Send(RunDoneMsg{Err: err})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
