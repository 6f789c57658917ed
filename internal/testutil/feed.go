// Package testutil provides in-process stand-ins for the mobile feed site
// and for HTTP forward proxies, so crawl code can be exercised through real
// proxy hops without network access.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// FeedPage is one page of a user's feed. SinceID is the cursor the page
// advertises for the next page; nil omits it.
type FeedPage struct {
	SinceID interface{}
	Mblogs  []map[string]interface{}
}

// FeedUser describes how the fake site answers for one uid
type FeedUser struct {
	ContainerID string
	// MissingContainer drops tabsInfo from the index response
	MissingContainer bool
	// ErrmsgFirst answers the first n index calls with an errmsg body
	ErrmsgFirst int
	// PageStatus, when set, is returned for every page request
	PageStatus int
	Pages      []FeedPage
}

// FeedServer simulates the m.weibo.cn landing page, index API, paged
// container API and status detail pages.
type FeedServer struct {
	*httptest.Server

	mu      sync.RWMutex
	users   map[string]*FeedUser
	details map[string]string
	hits    map[string]int
	errmsgs map[string]int

	requests atomic.Int64
}

func NewFeedServer() *FeedServer {
	f := &FeedServer{
		users:   make(map[string]*FeedUser),
		details: make(map[string]string),
		hits:    make(map[string]int),
		errmsgs: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handleRoot)
	mux.HandleFunc("/u/", f.handleLanding)
	mux.HandleFunc("/api/container/getIndex", f.handleIndex)
	f.Server = httptest.NewServer(mux)
	return f
}

// AddUser registers the feed for uid
func (f *FeedServer) AddUser(uid string, u *FeedUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[uid] = u
}

// AddDetail serves html at path (e.g. "/status/123")
func (f *FeedServer) AddDetail(path, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[path] = html
}

// Hits returns how often path was requested
func (f *FeedServer) Hits(path string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hits[path]
}

// Requests returns the total request count
func (f *FeedServer) Requests() int64 {
	return f.requests.Load()
}

func (f *FeedServer) count(path string) {
	f.requests.Add(1)
	f.mu.Lock()
	f.hits[path]++
	f.mu.Unlock()
}

func (f *FeedServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	f.count(r.URL.Path)

	f.mu.RLock()
	html, ok := f.details[r.URL.Path]
	f.mu.RUnlock()
	if ok {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
		return
	}
	if r.URL.Path == "/" {
		fmt.Fprint(w, "<html><body>m.weibo.cn</body></html>")
		return
	}
	http.NotFound(w, r)
}

func (f *FeedServer) handleLanding(w http.ResponseWriter, r *http.Request) {
	f.count(r.URL.Path)
	http.SetCookie(w, &http.Cookie{Name: "_T_WM", Value: "landing", Path: "/"})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body>profile</body></html>")
}

func (f *FeedServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid := q.Get("value")
	cid := q.Get("containerid")
	f.count(r.URL.Path)

	f.mu.Lock()
	user, ok := f.users[uid]
	var errmsg bool
	if ok && cid == "" && f.errmsgs[uid] < user.ErrmsgFirst {
		f.errmsgs[uid]++
		errmsg = true
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if !ok {
		fmt.Fprint(w, `{"ok":0,"msg":"user not found"}`)
		return
	}
	if errmsg {
		fmt.Fprint(w, `{"ok":0,"errno":"100005","errmsg":"请求过于频繁"}`)
		return
	}

	if cid == "" {
		writeJSON(w, indexResponse(user))
		return
	}
	if user.PageStatus != 0 {
		w.WriteHeader(user.PageStatus)
		return
	}
	writeJSON(w, pageResponse(user, q.Get("since_id")))
}

func indexResponse(u *FeedUser) map[string]interface{} {
	data := map[string]interface{}{
		"userInfo": map[string]interface{}{"id": 1},
	}
	if !u.MissingContainer {
		data["tabsInfo"] = map[string]interface{}{
			"tabs": []interface{}{
				map[string]interface{}{"containerid": "230283" + u.ContainerID, "tab_type": "profile"},
				map[string]interface{}{"containerid": u.ContainerID, "tab_type": "weibo"},
			},
		}
	}
	return map[string]interface{}{"ok": 1, "data": data}
}

// pageResponse picks the page whose predecessor advertised since; the first
// page is served for an empty cursor
func pageResponse(u *FeedUser, since string) map[string]interface{} {
	idx := 0
	if since != "" {
		idx = -1
		for i, p := range u.Pages {
			if p.SinceID != nil && fmt.Sprint(p.SinceID) == since && i+1 < len(u.Pages) {
				idx = i + 1
				break
			}
		}
	}
	if idx < 0 || idx >= len(u.Pages) {
		return map[string]interface{}{"ok": 0, "msg": "这里还没有内容"}
	}

	page := u.Pages[idx]
	cards := make([]interface{}, 0, len(page.Mblogs))
	for _, m := range page.Mblogs {
		cards = append(cards, map[string]interface{}{"card_type": 9, "mblog": m})
	}
	info := map[string]interface{}{"total": 100}
	if page.SinceID != nil {
		info["since_id"] = page.SinceID
	}
	return map[string]interface{}{
		"ok":   1,
		"data": map[string]interface{}{"cardlistInfo": info, "cards": cards},
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

// Mblog builds a feed item the way the mobile API renders one
func Mblog(id, text string) map[string]interface{} {
	return map[string]interface{}{
		"id":              id,
		"mid":             id,
		"text":            text,
		"textLength":      len([]rune(text)),
		"created_at":      "Sat Mar 02 10:00:00 +0800 2024",
		"reposts_count":   1,
		"comments_count":  2,
		"attitudes_count": 3,
		"pic_num":         0,
		"pic_ids":         []string{},
		"user":            map[string]interface{}{"id": 1001, "screen_name": "tester"},
	}
}

// TruncatedMblog is an item whose text ends in the "read more" anchor
// pointing at /status/{id}
func TruncatedMblog(id, prefix string) map[string]interface{} {
	m := Mblog(id, prefix+`...<a href="/status/`+id+`">全文</a>`)
	return m
}

// DetailPage renders a status page embedding status in $render_data
func DetailPage(status map[string]interface{}) string {
	b, _ := json.Marshal(map[string]interface{}{"status": status, "call": "ok"})
	var sb strings.Builder
	sb.WriteString("<html><head><script>\n")
	sb.WriteString("var $render_data = [")
	sb.Write(b)
	sb.WriteString("][0] || {};\n")
	sb.WriteString("var $config = {};\n</script></head><body></body></html>")
	return sb.String()
}
