package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"weibocrawl/pkg/crawler"
	"weibocrawl/pkg/proxypool"
)

// ProgressDisplay is a single-line Dashboard for plain terminals
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	total     int
	done      int
	aborted   int
	rows      int
	pages     int
	checked   int
	unchecked int
	current   string
	startTime time.Time
	verbose   bool
}

// NewProgressDisplay creates a display for total targets. out defaults to
// stdout. In verbose mode every target gets its own line.
func NewProgressDisplay(out io.Writer, total int, verbose bool) *ProgressDisplay {
	if out == nil {
		out = os.Stdout
	}
	return &ProgressDisplay{
		out:       out,
		total:     total,
		startTime: time.Now(),
		verbose:   verbose,
	}
}

func (p *ProgressDisplay) TargetStarted(worker int, target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = target
	if !p.verbose {
		p.printProgress()
	}
}

func (p *ProgressDisplay) TargetFinished(out crawler.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rows += len(out.Records)
	p.pages += out.Pages
	if out.Err != nil {
		p.aborted++
	} else {
		p.done++
	}

	if !p.verbose {
		p.printProgress()
		return
	}
	if out.Err != nil {
		fmt.Fprintf(p.out, "%s %s • %d pages • %d rows • %v\n", Red("✗"), out.Target, out.Pages, len(out.Records), out.Err)
		return
	}
	fmt.Fprintf(p.out, "%s %s • %d pages • %d rows • %s\n", Green("✓"), out.Target, out.Pages, len(out.Records), formatDuration(out.Duration))
}

func (p *ProgressDisplay) UpdatePool(stats proxypool.Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = stats.Checked
	p.unchecked = stats.Unchecked
}

func (p *ProgressDisplay) LogInfo(format string, args ...interface{}) {
	p.logLine(Cyan("•"), format, args...)
}

func (p *ProgressDisplay) LogWarning(format string, args ...interface{}) {
	p.logLine(Yellow("⚠"), format, args...)
}

func (p *ProgressDisplay) LogError(format string, args ...interface{}) {
	p.logLine(Red("✗"), format, args...)
}

func (p *ProgressDisplay) logLine(mark, format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n%s %s\n", mark, fmt.Sprintf(format, args...))
}

// Line renders the current progress line without printing it
func (p *ProgressDisplay) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.line()
}

func (p *ProgressDisplay) line() string {
	finished := p.done + p.aborted
	progress := 0.0
	if p.total > 0 {
		progress = float64(finished) / float64(p.total)
	}
	const barWidth = 20
	filled := int(progress * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("[%s] %d/%d targets • %d rows • proxies %d ready/%d pending • %s",
		bar, finished, p.total, p.rows, p.checked, p.unchecked, p.eta())
	if p.aborted > 0 {
		line += " • " + Red(fmt.Sprintf("%d aborted", p.aborted))
	}
	if p.current != "" {
		line += " • " + Cyan(p.current)
	}
	return line
}

func (p *ProgressDisplay) printProgress() {
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), p.line())
}

// Complete prints the closing summary
func (p *ProgressDisplay) Complete(output string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	fmt.Fprintf(p.out, "\n\n%s Crawled %d targets into %s\n", Green("✓"), p.done+p.aborted, output)
	fmt.Fprintf(p.out, "  %s %d rows from %d pages in %s\n", Dim("•"), p.rows, p.pages, formatDuration(elapsed))
	if p.aborted > 0 {
		fmt.Fprintf(p.out, "  %s %d targets aborted\n", Dim("•"), p.aborted)
	}
}

func (p *ProgressDisplay) eta() string {
	finished := p.done + p.aborted
	if finished == 0 {
		return "eta calculating..."
	}
	remaining := p.total - finished
	if remaining <= 0 {
		return "eta 0s"
	}
	perTarget := time.Since(p.startTime) / time.Duration(finished)
	return "eta " + formatDuration(perTarget*time.Duration(remaining))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
