package normalize

import "strconv"

// Columns is the output header, in row order
var Columns = []string{
	"url_id",
	"text",
	"text_length",
	"user_id",
	"reposts_count",
	"comments_count",
	"attitudes_count",
	"pic_num",
	"pic_id",
	"is_retweet",
	"retweet_id",
	"date_string",
	"timestamp",
}

// Record is one normalized feed item. Counts are kept as the API renders
// them: usually integers, but large values arrive as strings like "100万+".
type Record struct {
	URLID          string `json:"url_id"`
	Text           string `json:"text"`
	TextLength     int    `json:"text_length"`
	UserID         string `json:"user_id"`
	RepostsCount   string `json:"reposts_count"`
	CommentsCount  string `json:"comments_count"`
	AttitudesCount string `json:"attitudes_count"`
	PicNum         string `json:"pic_num"`
	PicID          string `json:"pic_id"`
	IsRetweet      bool   `json:"is_retweet"`
	RetweetID      string `json:"retweet_id"`
	DateString     string `json:"date_string"`
	// Timestamp is unix seconds; nil when the item has no parseable date
	Timestamp *int64 `json:"timestamp"`
}

// Header returns a copy of Columns
func Header() []string {
	return append([]string(nil), Columns...)
}

// Row renders r in Columns order
func (r Record) Row() []string {
	ts := ""
	if r.Timestamp != nil {
		ts = strconv.FormatInt(*r.Timestamp, 10)
	}
	return []string{
		r.URLID,
		r.Text,
		strconv.Itoa(r.TextLength),
		r.UserID,
		r.RepostsCount,
		r.CommentsCount,
		r.AttitudesCount,
		r.PicNum,
		r.PicID,
		strconv.FormatBool(r.IsRetweet),
		r.RetweetID,
		r.DateString,
		ts,
	}
}
