package weibo

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawl/internal/testutil"
	errs "weibocrawl/pkg/errors"
)

func TestEndpoints(t *testing.T) {
	e := NewEndpoints("https://m.weibo.cn/")

	assert.Equal(t, "https://m.weibo.cn/u/42", e.Landing("42"))
	assert.Equal(t, "https://m.weibo.cn/api/container/getIndex?type=uid&value=42", e.Index("42"))
	assert.Equal(t,
		"https://m.weibo.cn/api/container/getIndex?containerid=107603&type=uid&value=42",
		e.Page("42", "107603", ""))
	assert.Equal(t,
		"https://m.weibo.cn/api/container/getIndex?containerid=107603&since_id=4990&type=uid&value=42",
		e.Page("42", "107603", "4990"))

	detail, err := e.Detail("/status/4990123")
	require.NoError(t, err)
	assert.Equal(t, "https://m.weibo.cn/status/4990123", detail)

	detail, err = e.Detail("status/4990123")
	require.NoError(t, err)
	assert.Equal(t, "https://m.weibo.cn/status/4990123", detail)

	assert.Equal(t, DefaultBaseURL, NewEndpoints("").Base())
}

func TestParseContainerID(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      string
		throttled bool
	}{
		{
			name: "string container id",
			body: `{"ok":1,"data":{"tabsInfo":{"tabs":[{"containerid":"230283"},{"containerid":"1076031234"}]}}}`,
			want: "1076031234",
		},
		{
			name: "numeric container id",
			body: `{"ok":1,"data":{"tabsInfo":{"tabs":[{"containerid":1},{"containerid":1076031234}]}}}`,
			want: "1076031234",
		},
		{name: "not json", body: `<html>busy</html>`},
		{name: "no data", body: `{"ok":0,"msg":"no user"}`},
		{name: "no tabsInfo", body: `{"ok":1,"data":{"userInfo":{}}}`},
		{name: "one tab", body: `{"ok":1,"data":{"tabsInfo":{"tabs":[{"containerid":"1"}]}}}`},
		{name: "empty container id", body: `{"ok":1,"data":{"tabsInfo":{"tabs":[{},{"containerid":""}]}}}`},
		{name: "errmsg", body: `{"ok":0,"errmsg":"请求过于频繁"}`, throttled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseContainerID(tt.body)
			if tt.want != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			assert.True(t, errs.IsShape(err))
			assert.Equal(t, tt.throttled, errors.Is(err, ErrThrottled))
		})
	}
}

func TestParsePage(t *testing.T) {
	body := `{"ok":1,"data":{"cardlistInfo":{"since_id":4990000000000001},"cards":[
		{"card_type":9,"mblog":{"id":"1","text":"a"}},
		{"card_type":11,"card_group":[]},
		{"card_type":9,"mblog":{"id":"2","text":"b"}}
	]}}`

	page, err := ParsePage(body)
	require.NoError(t, err)
	assert.Equal(t, "4990000000000001", page.Cursor)
	require.Len(t, page.Items, 2)
	assert.JSONEq(t, `{"id":"1","text":"a"}`, string(page.Items[0]))
}

func TestParsePageCursorVariants(t *testing.T) {
	page, err := ParsePage(`{"ok":1,"data":{"cardlistInfo":{"since_id":"abc"},"cards":[]}}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", page.Cursor)
	assert.Empty(t, page.Items)

	page, err = ParsePage(`{"ok":1,"data":{"cardlistInfo":{},"cards":[]}}`)
	require.NoError(t, err)
	assert.Equal(t, "", page.Cursor)

	page, err = ParsePage(`{"ok":1,"data":{"cards":[]}}`)
	require.NoError(t, err)
	assert.Equal(t, "", page.Cursor)
}

func TestParsePageShapeErrors(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`{"ok":0,"msg":"这里还没有内容"}`,
		`{"ok":1,"data":{"cardlistInfo":{"since_id":1}}}`,
	} {
		_, err := ParsePage(body)
		assert.True(t, errs.IsShape(err), "body %q", body)
	}

	_, err := ParsePage(`{"ok":0,"errmsg":"slow down"}`)
	assert.True(t, errors.Is(err, ErrThrottled))
}

func TestDetailHref(t *testing.T) {
	href, ok := DetailHref(json.RawMessage(`{"text":"long post...<a href=\"/status/4990123\">全文</a>"}`))
	assert.True(t, ok)
	assert.Equal(t, "/status/4990123", href)

	_, ok = DetailHref(json.RawMessage(`{"text":"short post"}`))
	assert.False(t, ok)

	// the anchor must end the text
	_, ok = DetailHref(json.RawMessage(`{"text":"<a href=\"/status/1\">全文</a> trailing"}`))
	assert.False(t, ok)

	_, ok = DetailHref(json.RawMessage(`not json`))
	assert.False(t, ok)
}

func TestParseDetail(t *testing.T) {
	html := testutil.DetailPage(map[string]interface{}{"id": "4990123", "text": "full text"})

	status, err := ParseDetail(html)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(status, &m))
	assert.Equal(t, "full text", m["text"])
}

func TestParseDetailFailures(t *testing.T) {
	for name, html := range map[string]string{
		"no script":      `<html><body>gone</body></html>`,
		"other script":   `<html><script>var $config = {};</script></html>`,
		"broken json":    "<script>var $render_data = [{\"status\": ][0] || {};</script>",
		"missing status": "<script>var $render_data = [{\"call\": 1}][0] || {};</script>",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDetail(html)
			require.Error(t, err)
			assert.True(t, errs.IsShape(err))
		})
	}
}
