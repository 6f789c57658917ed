/*
Package weibo knows the shape of the m.weibo.cn mobile feed API.

A profile is crawled in two steps. The index call

	/api/container/getIndex?type=uid&value={uid}

names the feed container in data.tabsInfo.tabs[1].containerid. Feed pages
are then read from the same endpoint with containerid and, after the first
page, since_id set to the cursor the previous page returned in
data.cardlistInfo.since_id. Items live in data.cards[].mblog.

An item whose text ends in a "全文" anchor is truncated; the linked status
page embeds the full item as

	var $render_data = [{"status": {...}}][0] || {};

Parsing failures are returned as shape errors from weibocrawl/pkg/errors.
*/
package weibo
