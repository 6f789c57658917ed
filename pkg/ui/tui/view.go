package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"weibocrawl/pkg/crawler"
)

const logo = `
╔═══════════════════════════════════════════════════════╗
║ ██╗    ██╗███████╗██╗██████╗  ██████╗                   ║
║ ██║    ██║██╔════╝██║██╔══██╗██╔═══██╗                  ║
║ ██║ █╗ ██║█████╗  ██║██████╔╝██║   ██║                  ║
║ ██║███╗██║██╔══╝  ██║██╔══██╗██║   ██║                  ║
║ ╚███╔███╔╝███████╗██║██████╔╝╚██████╔╝                  ║
║  ╚══╝╚══╝ ╚══════╝╚═╝╚═════╝  ╚═════╝   FEED CRAWLER    ║
╚═══════════════════════════════════════════════════════╝`

// View renders the dashboard
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, logoStyle.Width(m.width).Render(logo))

	width := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderActivePanel(width),
		m.renderRecentPanel(width),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderPoolPanel(width),
		m.renderLogsPanel(width),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" CRAWL ")

	label := func(s string) string { return statsLabelStyle.Render(s) }
	value := func(format string, args ...interface{}) string {
		return statsValueStyle.Render(fmt.Sprintf(format, args...))
	}

	lines := []string{
		m.progress.ViewAs(m.Fraction()),
		fmt.Sprintf("%s %s", label("Targets:"), value("%d/%d", m.Finished(), m.total)),
		fmt.Sprintf("%s %s  %s %s", label("Done:"), successStyle.Render(fmt.Sprint(m.done)),
			label("Aborted:"), errorStyle.Render(fmt.Sprint(m.aborted))),
		fmt.Sprintf("%s %s  %s %s", label("Pages:"), value("%d", m.pages), label("Rows:"), value("%d", m.rows)),
		fmt.Sprintf("%s %s  %s %s", label("Expanded:"), value("%d", m.details), label("Kept truncated:"), value("%d", m.fallbacks)),
		fmt.Sprintf("%s %s  %s %s", label("Elapsed:"), value("%s", formatDuration(time.Since(m.startTime))),
			label("ETA:"), value("%s", formatDuration(m.ETA()))),
	}

	if len(m.failures) > 0 {
		kinds := make([]string, 0, len(m.failures))
		for k := range m.failures {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		parts := make([]string, 0, len(kinds))
		for _, k := range kinds {
			parts = append(parts, fmt.Sprintf("%s=%d", k, m.failures[k]))
		}
		lines = append(lines, fmt.Sprintf("%s %s", label("Failures:"), warningStyle.Render(strings.Join(parts, " "))))
	}
	if m.finished {
		if m.runErr != nil {
			lines = append(lines, errorStyle.Render("✗ "+m.runErr.Error()))
		} else {
			lines = append(lines, successStyle.Render("✓ FINISHED"))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderActivePanel(width int) string {
	title := titleStyle.Render(" WORKERS ")

	active := m.ActiveTargets()
	if len(active) == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("Idle")),
		)
	}

	items := make([]string, 0, len(active))
	for _, a := range active {
		items = append(items, fmt.Sprintf("%s %s %s",
			m.spinner.View(),
			activeStyle.Render(fmt.Sprintf("#%d %s", a.Worker, a.Target)),
			dimStyle.Render(formatDuration(time.Since(a.Started))),
		))
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(items, "\n")),
	)
}

func (m *Model) renderRecentPanel(width int) string {
	title := titleStyle.Render(" RECENT ")

	if len(m.recent) == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("Nothing finished yet")),
		)
	}

	items := make([]string, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		r := m.recent[i]
		mark := successStyle.Render("✓")
		if r.State == crawler.StateAborted {
			mark = errorStyle.Render("✗")
		}
		items = append(items, mark+recentStyle.Render(fmt.Sprintf("%s %d pages %d rows %s",
			r.Target, r.Pages, r.Rows, formatDuration(r.Duration))))
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(items, "\n")),
	)
}

func (m *Model) renderPoolPanel(width int) string {
	title := titleStyle.Render(" PROXY POOL ")

	ready := PoolHealthStyle(m.pool.Checked, m.workers)
	capacity := m.pool.Checked + m.pool.Unchecked
	barWidth := width - 8
	if barWidth < 1 {
		barWidth = 1
	}
	filled := 0
	if capacity > 0 {
		filled = m.pool.Checked * barWidth / capacity
	}
	bar := ready.Render(strings.Repeat("█", filled)) +
		emptyBarStyle.Render(strings.Repeat("░", barWidth-filled))

	lines := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Ready:"), ready.Render(fmt.Sprint(m.pool.Checked))),
		bar,
		fmt.Sprintf("%s %s  %s %s",
			statsLabelStyle.Render("Unchecked:"), statsValueStyle.Render(fmt.Sprint(m.pool.Unchecked)),
			statsLabelStyle.Render("Validating:"), statsValueStyle.Render(fmt.Sprint(m.pool.ActiveValidators))),
		fmt.Sprintf("%s %s  %s %s",
			statsLabelStyle.Render("Seen:"), statsValueStyle.Render(fmt.Sprint(m.pool.Seen)),
			statsLabelStyle.Render("Retired:"), statsValueStyle.Render(fmt.Sprint(m.pool.Retired))),
	}
	if m.pool.ForceReleases > 0 {
		lines = append(lines, warningStyle.Render(fmt.Sprintf("⟳ %d force releases", m.pool.ForceReleases)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOGS ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	maxMsgLen := width - 25
	var logs []string
	for _, log := range m.logMessages[start:] {
		msg := log.Message
		if maxMsgLen > 3 && len([]rune(msg)) > maxMsgLen {
			msg = string([]rune(msg)[:maxMsgLen-3]) + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s",
			logTimestampStyle.Render(log.Time.Format("15:04:05")),
			lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level)),
			logMessageStyle.Render(msg),
		))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = dimStyle.Render("No logs yet...")
	}

	logsHeight := m.height - 30
	if logsHeight < 5 {
		logsHeight = 5
	}
	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop the crawl and quit
    ctrl+l   - Clear logs
    ?        - Toggle this help

  Proxy pool:
    ` + successStyle.Render("Green") + `    - Enough ready proxies for every worker
    ` + warningStyle.Render("Orange") + `   - Fewer ready proxies than workers
    ` + errorStyle.Render("Red") + `      - No ready proxies, workers are waiting
`
	return panelStyle.Width(m.width).Render(help)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
