package tui

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"weibocrawl/pkg/crawler"
	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/proxypool"
)

// ActiveTarget is a target a worker is currently crawling
type ActiveTarget struct {
	Worker  int
	Target  string
	Started time.Time
}

// FinishedTarget is the dashboard's view of a crawl outcome
type FinishedTarget struct {
	Target   string
	State    crawler.State
	Pages    int
	Rows     int
	Err      error
	Duration time.Duration
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the crawl dashboard. It is only touched from the bubbletea
// event loop; other goroutines talk to it through messages.
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	total     int
	workers   int
	active    map[int]ActiveTarget
	recent    []FinishedTarget
	maxRecent int

	done      int
	aborted   int
	rows      int
	pages     int
	details   int
	fallbacks int
	failures  map[string]int

	pool      proxypool.Stats
	startTime time.Time
	finished  bool
	runErr    error

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	// onQuit cancels the crawl when the user leaves early
	onQuit func()
}

// NewModel creates a dashboard for total targets crawled by workers
func NewModel(total, workers int, onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return Model{
		spinner:        s,
		progress:       p,
		total:          total,
		workers:        workers,
		active:         make(map[int]ActiveTarget),
		maxRecent:      8,
		failures:       make(map[string]int),
		startTime:      time.Now(),
		maxLogMessages: 50,
		onQuit:         onQuit,
	}
}

// Init starts the spinner and the refresh tick
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *Model) startTarget(worker int, target string) {
	m.active[worker] = ActiveTarget{Worker: worker, Target: target, Started: time.Now()}
}

func (m *Model) finishTarget(out crawler.Outcome) {
	for id, a := range m.active {
		if a.Target == out.Target {
			delete(m.active, id)
			break
		}
	}

	m.pages += out.Pages
	m.rows += len(out.Records)
	m.details += out.Details
	m.fallbacks += out.Fallbacks
	if out.Err != nil {
		m.aborted++
		m.failures[failureKind(out.Err)]++
	} else {
		m.done++
	}

	m.recent = append(m.recent, FinishedTarget{
		Target:   out.Target,
		State:    out.State,
		Pages:    out.Pages,
		Rows:     len(out.Records),
		Err:      out.Err,
		Duration: out.Duration,
	})
	if len(m.recent) > m.maxRecent {
		m.recent = m.recent[len(m.recent)-m.maxRecent:]
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = neonRed
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Finished returns the number of targets that reached DONE or ABORTED
func (m *Model) Finished() int {
	return m.done + m.aborted
}

// Fraction is the share of targets finished
func (m *Model) Fraction() float64 {
	if m.total <= 0 {
		return 0
	}
	f := float64(m.Finished()) / float64(m.total)
	if f > 1 {
		f = 1
	}
	return f
}

// ActiveTargets returns the in-flight targets ordered by worker
func (m *Model) ActiveTargets() []ActiveTarget {
	out := make([]ActiveTarget, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Worker < out[j].Worker })
	return out
}

// ETA estimates the time left from the mean time per finished target
func (m *Model) ETA() time.Duration {
	finished := m.Finished()
	if finished == 0 || finished >= m.total {
		return 0
	}
	per := time.Since(m.startTime) / time.Duration(finished)
	return per * time.Duration(m.total-finished)
}

func failureKind(err error) string {
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return string(errs.TypeOf(err))
}
