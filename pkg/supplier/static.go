package supplier

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// StaticFile reads one proxy address per line. Blank lines and lines
// starting with # are skipped. The file is re-read every cycle so it can be
// edited while a crawl runs.
type StaticFile struct {
	path string
}

func NewStaticFile(path string) *StaticFile {
	return &StaticFile{path: path}
}

func (s *StaticFile) Name() string { return "file:" + s.path }

func (s *StaticFile) Supply(ctx context.Context) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	return out, nil
}
