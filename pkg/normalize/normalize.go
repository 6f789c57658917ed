// Package normalize maps one raw mobile feed item to an output Record.
package normalize

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the created_at format of the mobile API
const DateLayout = "Mon Jan 02 15:04:05 -0700 2006"

var markupPattern = regexp.MustCompile(`(&[a-z]*?;)|(<[^>]*>)`)

type rawItem struct {
	ID              json.RawMessage   `json:"id"`
	Text            *string           `json:"text"`
	TextLength      json.RawMessage   `json:"textLength"`
	User            json.RawMessage   `json:"user"`
	RepostsCount    json.RawMessage   `json:"reposts_count"`
	CommentsCount   json.RawMessage   `json:"comments_count"`
	AttitudesCount  json.RawMessage   `json:"attitudes_count"`
	PicNum          json.RawMessage   `json:"pic_num"`
	PicIDs          []json.RawMessage `json:"pic_ids"`
	CreatedAt       string            `json:"created_at"`
	RetweetedStatus json.RawMessage   `json:"retweeted_status"`
}

type rawUser struct {
	ID json.RawMessage `json:"id"`
}

// StripHTML removes tags and named entities
func StripHTML(s string) string {
	return markupPattern.ReplaceAllString(s, "")
}

// Normalize converts item into a Record. It reports false when the item has
// no author block or no text, or is not a JSON object.
func Normalize(item json.RawMessage) (Record, bool) {
	var raw rawItem
	if err := json.Unmarshal(item, &raw); err != nil {
		return Record{}, false
	}
	if raw.Text == nil || *raw.Text == "" || falsy(raw.User) {
		return Record{}, false
	}
	var user rawUser
	if err := json.Unmarshal(raw.User, &user); err != nil {
		return Record{}, false
	}

	text := StripHTML(*raw.Text)
	rec := Record{
		URLID:          scalar(raw.ID),
		Text:           text,
		UserID:         scalar(user.ID),
		RepostsCount:   scalar(raw.RepostsCount),
		CommentsCount:  scalar(raw.CommentsCount),
		AttitudesCount: scalar(raw.AttitudesCount),
		PicNum:         scalar(raw.PicNum),
		DateString:     raw.CreatedAt,
	}

	var textLength int
	if json.Unmarshal(raw.TextLength, &textLength) != nil || textLength == 0 {
		textLength = utf8.RuneCountInString(text)
	}
	rec.TextLength = textLength

	ids := make([]string, 0, len(raw.PicIDs))
	for _, id := range raw.PicIDs {
		if s := scalar(id); s != "" {
			ids = append(ids, s)
		}
	}
	rec.PicID = strings.Join(ids, " ")

	if raw.CreatedAt != "" {
		if t, err := time.Parse(DateLayout, raw.CreatedAt); err == nil {
			ts := t.Unix()
			rec.Timestamp = &ts
		}
	}

	if !isNull(raw.RetweetedStatus) {
		rec.IsRetweet = true
		var rt struct {
			ID json.RawMessage `json:"id"`
		}
		if json.Unmarshal(raw.RetweetedStatus, &rt) == nil {
			rec.RetweetID = scalar(rt.ID)
		}
	}

	return rec, true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// falsy reports JSON values that carry nothing: null, false, 0, "", {} and []
func falsy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return true
	}
	switch string(raw) {
	case "false", "0", `""`:
		return true
	}
	if raw[0] == '{' || raw[0] == '[' {
		return len(bytes.TrimSpace(raw[1:len(raw)-1])) == 0
	}
	return false
}

// scalar renders a JSON string, number or bool as text
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return s
	}
	if raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	return string(raw)
}
