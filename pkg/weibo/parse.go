package weibo

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	errs "weibocrawl/pkg/errors"
)

// ErrThrottled marks an API body carrying errmsg, the feed's rate-limit
// answer. It is wrapped in a shape error.
var ErrThrottled = errors.New("feed api returned errmsg")

var (
	truncatedPattern  = regexp.MustCompile(`<a\s+href="([^"]+)">全文</a>$`)
	renderDataPattern = regexp.MustCompile(`(?s)var \$render_data = \[(.*?)\]\[0\] \|\| \{\};`)
)

// ParseContainerID extracts data.tabsInfo.tabs[1].containerid from an index
// response
func ParseContainerID(body string) (string, error) {
	var resp IndexResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", errs.Wrap(errs.ErrorTypeShape, err, "index response is not JSON")
	}
	if resp.Errmsg != "" {
		return "", errs.Wrap(errs.ErrorTypeShape, ErrThrottled, resp.Errmsg)
	}
	if resp.Data == nil || resp.Data.TabsInfo == nil {
		return "", errs.Shapef("index response has no data.tabsInfo")
	}
	tabs := resp.Data.TabsInfo.Tabs
	if len(tabs) < 2 {
		return "", errs.Shapef("index response has %d tabs, want at least 2", len(tabs))
	}
	cid := scalar(tabs[1].ContainerID)
	if cid == "" {
		return "", errs.Shapef("index response tab 1 has no containerid")
	}
	return cid, nil
}

// ParsePage decodes a container page. data.cards must be present; the
// cursor is optional.
func ParsePage(body string) (Page, error) {
	var resp PageResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return Page{}, errs.Wrap(errs.ErrorTypeShape, err, "page response is not JSON")
	}
	if resp.Errmsg != "" {
		return Page{}, errs.Wrap(errs.ErrorTypeShape, ErrThrottled, resp.Errmsg)
	}
	if resp.Data == nil || resp.Data.Cards == nil {
		return Page{}, errs.Shapef("page response has no data.cards")
	}

	var page Page
	if info := resp.Data.CardlistInfo; info != nil {
		page.Cursor = scalar(info.SinceID)
	}
	for _, c := range *resp.Data.Cards {
		if len(c.Mblog) == 0 || bytes.Equal(c.Mblog, []byte("null")) {
			continue
		}
		page.Items = append(page.Items, c.Mblog)
	}
	return page, nil
}

// DetailHref reports whether an item's text is cut short and, if so, the
// href of its "read more" link
func DetailHref(item json.RawMessage) (string, bool) {
	var m mblogText
	if err := json.Unmarshal(item, &m); err != nil {
		return "", false
	}
	match := truncatedPattern.FindStringSubmatch(m.Text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// ParseDetail pulls the full status out of a detail page's $render_data
// script block
func ParseDetail(html string) (json.RawMessage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeShape, err, "detail page is not HTML")
	}

	var block string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := renderDataPattern.FindStringSubmatch(s.Text()); m != nil {
			block = m[1]
			return false
		}
		return true
	})
	if block == "" {
		return nil, errs.Shapef("detail page has no $render_data block")
	}

	var data detailData
	if err := json.Unmarshal([]byte(block), &data); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeShape, err, "detail $render_data is not JSON")
	}
	if len(data.Status) == 0 || bytes.Equal(data.Status, []byte("null")) {
		return nil, errs.Shapef("detail $render_data has no status")
	}
	return data.Status, nil
}

// scalar renders a JSON string or number as text; anything else is empty
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if json.Unmarshal(raw, &n) != nil {
			return ""
		}
		return n.String()
	}
	return ""
}
