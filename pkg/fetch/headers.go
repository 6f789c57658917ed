package fetch

import (
	"net/http"

	"weibocrawl/pkg/config"
)

// MobileHeaders is the header set the mobile web client sends to the
// container API. Accept-Encoding is left to net/http so gzip is decoded
// transparently.
func MobileHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en-US;q=0.8,en;q=0.7")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("MWeibo-Pwa", "1")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	return h
}
