package alligator

import (
	"net/http"

	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
)

// ServeHTTP implements caddyhttp.MiddlewareHandler. Requests whose path
// doesn't match the webhook path shape fall through to next so this
// module composes inside an arbitrary Caddy route.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	if handled := h.ingest.TryServeHTTP(w, r); !handled {
		return next.ServeHTTP(w, r)
	}
	return nil
}
