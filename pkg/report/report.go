// Package report records what a crawl run did and saves it as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"weibocrawl/pkg/logger"
)

// Version is bumped when the file layout changes
const Version = 1

// Failure is one target that ended without completing
type Failure struct {
	Target string `json:"target"`
	State  string `json:"state"`
	Pages  int    `json:"pages"`
	Rows   int    `json:"rows"`
	Error  string `json:"error"`
}

// Report summarizes one run
type Report struct {
	RunID      string                 `json:"run_id"`
	Output     string                 `json:"output"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Duration   string                 `json:"duration"`
	Targets    int                    `json:"targets"`
	Done       int                    `json:"done"`
	Aborted    int                    `json:"aborted"`
	Pages      int                    `json:"pages"`
	Rows       int                    `json:"rows"`
	Details    int                    `json:"details"`
	Fallbacks  int                    `json:"fallbacks"`
	Failures   []Failure              `json:"failures,omitempty"`
	Pool       map[string]interface{} `json:"pool,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Version    int                    `json:"version"`
}

// Recorder accumulates target outcomes from concurrent workers
type Recorder struct {
	mu     sync.Mutex
	report Report
}

// NewRecorder starts a report for runID
func NewRecorder(runID, output string) *Recorder {
	return &Recorder{report: Report{
		RunID:     runID,
		Output:    output,
		StartedAt: time.Now(),
		Version:   Version,
	}}
}

// Outcome is what the recorder needs from a finished target
type Outcome struct {
	Target    string
	State     string
	Pages     int
	Rows      int
	Details   int
	Fallbacks int
	Err       error
}

// Add records one target. Targets with an error count as aborted.
func (r *Recorder) Add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Targets++
	r.report.Pages += o.Pages
	r.report.Rows += o.Rows
	r.report.Details += o.Details
	r.report.Fallbacks += o.Fallbacks
	if o.Err == nil {
		r.report.Done++
		return
	}
	r.report.Aborted++
	r.report.Failures = append(r.report.Failures, Failure{
		Target: o.Target,
		State:  o.State,
		Pages:  o.Pages,
		Rows:   o.Rows,
		Error:  o.Err.Error(),
	})
}

// Finish stamps the end time and returns a copy of the report
func (r *Recorder) Finish(pool map[string]interface{}, runErr error) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.FinishedAt = time.Now()
	r.report.Duration = r.report.FinishedAt.Sub(r.report.StartedAt).Round(time.Millisecond).String()
	r.report.Pool = pool
	if runErr != nil {
		r.report.Error = runErr.Error()
	}
	sort.Slice(r.report.Failures, func(i, j int) bool {
		return r.report.Failures[i].Target < r.report.Failures[j].Target
	})

	out := r.report
	out.Failures = append([]Failure(nil), r.report.Failures...)
	return out
}

// Save writes rep to path through a temporary file and rename
func Save(path string, rep Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary report file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rep); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync report file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace report file: %w", err)
	}

	logger.GetLogger().DebugWithFields("Run report saved", map[string]interface{}{
		"path":    path,
		"targets": rep.Targets,
		"rows":    rep.Rows,
	})
	return nil
}

// Load reads a saved report. A missing file returns nil, nil.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &rep, nil
}
