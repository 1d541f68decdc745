package opensearch

import (
	"fmt"
	"net/url"
	"strconv"
)

// queryParams carries everything needed to build one page URL.
type queryParams struct {
	base       string
	queryField string
	start      string
	end        string
	skipRaw    bool
	filter     string
	offset     int
	rows       int
}

// buildPageURL renders the offset/page-size query contract: a restart-date
// range filter, ascending order on the restart-date field, and start/rows
// paging so results are scanned oldest-to-newest within the window.
func buildPageURL(p queryParams) string {
	q := fmt.Sprintf("%s:[%s TO %s]", p.queryField, p.start, p.end)
	if p.skipRaw {
		q += " AND NOT producttype:RAW"
	}
	if p.filter != "" {
		q += p.filter
	}

	values := url.Values{}
	values.Set("q", q)
	values.Set("orderby", p.queryField+" asc")
	values.Set("start", strconv.Itoa(p.offset))
	values.Set("rows", strconv.Itoa(p.rows))

	return p.base + "?" + values.Encode()
}
