package weibo

import "encoding/json"

// IndexResponse is the part of the profile index response the crawler reads
type IndexResponse struct {
	OK     int    `json:"ok"`
	Errmsg string `json:"errmsg,omitempty"`
	Data   *struct {
		TabsInfo *struct {
			Tabs []Tab `json:"tabs"`
		} `json:"tabsInfo"`
	} `json:"data"`
}

// Tab is one profile tab. The second tab is the feed.
type Tab struct {
	ContainerID json.RawMessage `json:"containerid"`
	TabType     string          `json:"tab_type,omitempty"`
}

// PageResponse is one page of the container API
type PageResponse struct {
	OK     int    `json:"ok"`
	Errmsg string `json:"errmsg,omitempty"`
	Data   *struct {
		CardlistInfo *struct {
			SinceID json.RawMessage `json:"since_id"`
		} `json:"cardlistInfo"`
		Cards *[]Card `json:"cards"`
	} `json:"data"`
}

// Card wraps one feed item. Cards without an mblog are layout elements.
type Card struct {
	CardType int             `json:"card_type"`
	Mblog    json.RawMessage `json:"mblog,omitempty"`
}

// Page is a decoded feed page: the raw items and the next cursor, empty
// when the page advertises none
type Page struct {
	Cursor string
	Items  []json.RawMessage
}

type detailData struct {
	Status json.RawMessage `json:"status"`
}

type mblogText struct {
	Text string `json:"text"`
}
