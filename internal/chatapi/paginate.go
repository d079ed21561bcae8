package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// maxPaginatePages is a hard safety ceiling on how many pages one listing
// call will ever request.
const maxPaginatePages = 200

// paginate drives fetch page-by-page from page 1, concatenating the named
// items field of each response. It stops on a short page, an empty page,
// a page whose first item ID was already seen first on an earlier page
// (a server that ignores the page parameter), or the page ceiling.
//
// "Fewer than a full page means last page" is a heuristic: a server that
// filters items can hand back a short page that is not actually last, and
// callers tolerate the resulting under-fetch.
func (c *Client) paginate(ctx context.Context, endpoint string, query url.Values, itemsField string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	seenFirstIDs := make(map[string]bool)

	for page := 1; page <= maxPaginatePages; page++ {
		if page > 1 {
			c.sleep(c.pageDelay)
		}

		fields, err := c.fetch(ctx, endpoint, query, page)
		if err != nil {
			return nil, err
		}

		var items []json.RawMessage
		if raw, ok := fields[itemsField]; ok {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("paginate %s: decode %q field: %w", endpoint, itemsField, err)
			}
		}

		if len(items) == 0 {
			break
		}

		if id := itemID(items[0]); id != "" {
			if seenFirstIDs[id] {
				c.logger.Warn("pagination loop detected, stopping",
					"endpoint", endpoint,
					"page", page,
					"first_id", id,
				)
				break
			}
			seenFirstIDs[id] = true
		}

		all = append(all, items...)

		if len(items) < pageSize {
			break
		}

		if page == maxPaginatePages {
			c.logger.Warn("pagination hit hard page ceiling",
				"endpoint", endpoint,
				"pages", maxPaginatePages,
				"items", len(all),
			)
		}
	}

	return all, nil
}

func itemID(raw json.RawMessage) string {
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v.ID
}
