package weibo

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the mobile web front end
const DefaultBaseURL = "https://m.weibo.cn"

// Endpoints builds the URLs of the mobile feed API
type Endpoints struct {
	base string
}

func NewEndpoints(base string) Endpoints {
	if base == "" {
		base = DefaultBaseURL
	}
	return Endpoints{base: strings.TrimRight(base, "/")}
}

// Base returns the site root without a trailing slash
func (e Endpoints) Base() string { return e.base }

// Landing is the profile page; fetching it primes the session cookies
func (e Endpoints) Landing(uid string) string {
	return e.base + "/u/" + url.PathEscape(uid)
}

// Index is the profile index API response carrying the tab container ids
func (e Endpoints) Index(uid string) string {
	q := url.Values{}
	q.Set("type", "uid")
	q.Set("value", uid)
	return e.base + "/api/container/getIndex?" + q.Encode()
}

// Page is one feed page. The first page has no cursor.
func (e Endpoints) Page(uid, containerID, sinceID string) string {
	q := url.Values{}
	q.Set("type", "uid")
	q.Set("value", uid)
	q.Set("containerid", containerID)
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	return e.base + "/api/container/getIndex?" + q.Encode()
}

// Detail resolves a "read more" href against the site root
func (e Endpoints) Detail(href string) (string, error) {
	base, err := url.Parse(e.base + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid detail href %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}
