package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"weibocrawl/pkg/crawler"
	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/normalize"
	"weibocrawl/pkg/proxypool"
)

func send(m *Model, msgs ...tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	for _, msg := range msgs {
		_, cmd = m.Update(msg)
	}
	return cmd
}

func TestModelTracksTargets(t *testing.T) {
	model := NewModel(3, 2, nil)
	m := &model

	send(m,
		TargetStartMsg{Worker: 0, Target: "42"},
		TargetStartMsg{Worker: 1, Target: "7"},
	)
	if got := len(m.ActiveTargets()); got != 2 {
		t.Fatalf("Expected 2 active targets, got %d", got)
	}
	if m.ActiveTargets()[0].Target != "42" {
		t.Errorf("Expected worker 0 first, got %+v", m.ActiveTargets())
	}

	send(m, TargetDoneMsg{Outcome: crawler.Outcome{
		Target:  "42",
		State:   crawler.StateDone,
		Pages:   2,
		Records: make([]normalize.Record, 5),
		Details: 1,
	}})
	send(m, TargetDoneMsg{Outcome: crawler.Outcome{
		Target: "7",
		State:  crawler.StateAborted,
		Pages:  1,
		Err:    errs.New(errs.ErrorTypeTransport, "fetch exhausted"),
	}})

	if m.done != 1 || m.aborted != 1 {
		t.Errorf("Expected 1 done and 1 aborted, got %d and %d", m.done, m.aborted)
	}
	if m.rows != 5 || m.pages != 3 || m.details != 1 {
		t.Errorf("Unexpected totals: rows=%d pages=%d details=%d", m.rows, m.pages, m.details)
	}
	if len(m.ActiveTargets()) != 0 {
		t.Errorf("Expected no active targets, got %d", len(m.ActiveTargets()))
	}
	if m.failures["transport"] != 1 {
		t.Errorf("Expected one transport failure, got %v", m.failures)
	}
	if len(m.logMessages) != 1 || m.logMessages[0].Level != "WARN" {
		t.Errorf("Expected one warning for the aborted target, got %+v", m.logMessages)
	}

	want := 2.0 / 3.0
	if got := m.Fraction(); got != want {
		t.Errorf("Expected fraction %f, got %f", want, got)
	}
}

func TestModelRecentIsBounded(t *testing.T) {
	model := NewModel(20, 1, nil)
	m := &model
	for i := 0; i < 12; i++ {
		send(m, TargetDoneMsg{Outcome: crawler.Outcome{Target: "t", State: crawler.StateDone}})
	}
	if len(m.recent) != m.maxRecent {
		t.Errorf("Expected %d recent targets, got %d", m.maxRecent, len(m.recent))
	}
}

func TestModelLogsAreBounded(t *testing.T) {
	model := NewModel(1, 1, nil)
	m := &model
	for i := 0; i < 60; i++ {
		send(m, LogMsg{Level: "INFO", Message: "hello"})
	}
	if len(m.logMessages) != m.maxLogMessages {
		t.Errorf("Expected %d log messages, got %d", m.maxLogMessages, len(m.logMessages))
	}

	send(m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(m.logMessages) != 0 {
		t.Errorf("Expected logs to be cleared, got %d", len(m.logMessages))
	}
}

func TestQuitCancelsRunningCrawl(t *testing.T) {
	cancelled := 0
	model := NewModel(1, 1, func() { cancelled++ })
	m := &model

	cmd := send(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if cancelled != 1 {
		t.Errorf("Expected the crawl to be cancelled once, got %d", cancelled)
	}

	// after the run is over, quitting just leaves
	model = NewModel(1, 1, func() { cancelled++ })
	m = &model
	send(m, RunDoneMsg{})
	send(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cancelled != 1 {
		t.Errorf("Expected no cancel after the run finished, got %d", cancelled)
	}
}

func TestRunDoneStopsTicking(t *testing.T) {
	model := NewModel(1, 1, nil)
	m := &model

	if cmd := send(m, TickMsg(time.Now())); cmd == nil {
		t.Error("Expected the tick to reschedule while running")
	}
	send(m, RunDoneMsg{Err: errors.New("sink closed")})
	if cmd := send(m, TickMsg(time.Now())); cmd != nil {
		t.Error("Expected no tick after the run finished")
	}
	if m.runErr == nil || m.logMessages[len(m.logMessages)-1].Level != "ERROR" {
		t.Errorf("Expected the run error to be logged, got %+v", m.logMessages)
	}
}

func TestViewRendersPanels(t *testing.T) {
	model := NewModel(2, 2, nil)
	m := &model
	if got := m.View(); got != "Initializing..." {
		t.Errorf("Expected placeholder before sizing, got %q", got)
	}

	send(m,
		tea.WindowSizeMsg{Width: 160, Height: 60},
		TargetStartMsg{Worker: 1, Target: "1005051234"},
		PoolStatsMsg{Stats: proxypool.Stats{Checked: 1, Unchecked: 4, Retired: 2, ForceReleases: 1}},
	)
	view := m.View()
	for _, want := range []string{"CRAWL", "WORKERS", "PROXY POOL", "LOGS", "1005051234", "force releases"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestPoolHealthStyle(t *testing.T) {
	tests := []struct {
		checked, workers int
		want             string
	}{
		{0, 4, errorStyle.Render("x")},
		{2, 4, warningStyle.Render("x")},
		{4, 4, successStyle.Render("x")},
	}
	for _, tt := range tests {
		if got := PoolHealthStyle(tt.checked, tt.workers).Render("x"); got != tt.want {
			t.Errorf("PoolHealthStyle(%d, %d) rendered %q, want %q", tt.checked, tt.workers, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{-time.Second, "00:00"},
		{65 * time.Second, "01:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}
	for _, test := range tests {
		if got := formatDuration(test.d); got != test.expected {
			t.Errorf("formatDuration(%v) = %s, expected %s", test.d, got, test.expected)
		}
	}
}
