package batch

import "regexp"

// pathRegex matches the webhook path shape. It intentionally preserves
// the original's tolerant webhook_id pattern ([0-9]\w+, not all-digit)
// even though real destination IDs are snowflakes — see DESIGN.md.
var pathRegex = regexp.MustCompile(`^/api/(?:v\d{1,3}/)?webhooks/([0-9]\w+)/([A-Za-z0-9-]{1,100})$`)

// queryRegex bounds the accepted character set and length of a query
// string that participates in a DestinationKey.
var queryRegex = regexp.MustCompile(`^[A-Za-z0-9.\-=&]{1,50}$`)

// ResolvePath extracts (webhook_id, webhook_token, query) from a
// request path and raw query string. ok is false if the path doesn't
// match the webhook shape or the query string uses characters outside
// the accepted set — both are path-invalid (taxonomy code 100).
func ResolvePath(path, rawQuery string) (key DestinationKey, ok bool) {
	m := pathRegex.FindStringSubmatch(path)
	if m == nil {
		return DestinationKey{}, false
	}

	query := ""
	if rawQuery != "" {
		if !queryRegex.MatchString(rawQuery) {
			return DestinationKey{}, false
		}
		query = rawQuery
	}

	return DestinationKey{WebhookID: m[1], WebhookToken: m[2], Query: query}, true
}
