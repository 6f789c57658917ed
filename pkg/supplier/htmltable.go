package supplier

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"weibocrawl/pkg/logger"
)

// HTMLTable scrapes free proxy-list pages that publish an HTML table with
// the IP in one cell and the port in the next.
type HTMLTable struct {
	pages  []string
	client *http.Client
	logger logger.Logger
}

func NewHTMLTable(pages []string, client *http.Client, log logger.Logger) *HTMLTable {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &HTMLTable{pages: pages, client: client, logger: log.WithField("supplier", "html_table")}
}

func (s *HTMLTable) Name() string { return "html_table" }

// Supply scrapes every page. A page that fails is skipped; the call only
// fails when no page could be read.
func (s *HTMLTable) Supply(ctx context.Context) ([]string, error) {
	var (
		out     []string
		lastErr error
		okPages int
	)
	for _, page := range s.pages {
		body, err := get(ctx, s.client, page)
		if err != nil {
			s.logger.WithError(err).WithField("url", page).Warn("Failed to fetch proxy list page")
			lastErr = err
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			s.logger.WithError(err).WithField("url", page).Warn("Failed to parse proxy list page")
			lastErr = err
			continue
		}
		okPages++
		found := parseTable(doc)
		s.logger.DebugWithFields("Scraped proxy list page", map[string]interface{}{
			"url":   page,
			"count": len(found),
		})
		out = append(out, found...)
	}
	if okPages == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func parseTable(doc *goquery.Document) []string {
	var out []string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		for i := 0; i < cells.Length(); i++ {
			text := strings.TrimSpace(cells.Eq(i).Text())
			if host, port, ok := strings.Cut(text, ":"); ok && ipv4.MatchString(host) && validPort(port) {
				out = append(out, text)
				return
			}
			if !ipv4.MatchString(text) || i+1 >= cells.Length() {
				continue
			}
			port := strings.TrimSpace(cells.Eq(i + 1).Text())
			if validPort(port) {
				out = append(out, text+":"+port)
				return
			}
		}
	})
	return out
}

func validPort(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0 && n < 65536
}
