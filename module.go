package alligator

import (
	"fmt"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"

	"github.com/alligator-proxy/alligator/internal/batch"
	"github.com/alligator-proxy/alligator/internal/config"
)

func init() {
	caddy.RegisterModule(Handler{})
	httpcaddyfile.RegisterHandlerDirective("webhook_batch", parseCaddyfile)
}

// Handler implements the per-destination webhook batching aggregator
// as a Caddy HTTP handler.
type Handler struct {
	// DeliverMS is the sliding-window flush duration in milliseconds.
	DeliverMS int `json:"deliver_ms,omitempty"`

	// EmbedLimit is the maximum total embeds per outbound batch.
	EmbedLimit int `json:"embed_limit,omitempty"`

	// WebhookEndpoint is the upstream base URL, e.g.
	// https://discord.com/api/webhooks/
	WebhookEndpoint string `json:"webhook_endpoint,omitempty"`

	// RequestIDHeader, if set, is echoed back on every response this
	// handler writes whenever the inbound request carries it, so a
	// reverse proxy in front of Caddy can correlate log lines. Requests
	// that fall through to the next handler are not touched.
	RequestIDHeader string `json:"request_id_header,omitempty"`

	engine *batch.Engine
	ingest *batch.IngestHandler
	logger *zap.Logger
}

// CaddyModule returns the Caddy module information.
func (Handler) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.webhook_batch",
		New: func() caddy.Module { return new(Handler) },
	}
}

// Provision constructs this handler's Engine. One Engine is owned per
// Handler instance; there is no package-level mutable state.
func (h *Handler) Provision(ctx caddy.Context) error {
	h.logger = ctx.Logger()

	cfg := config.Defaults()
	if h.DeliverMS != 0 {
		cfg.DeliverMS = h.DeliverMS
	}
	if h.EmbedLimit != 0 {
		cfg.EmbedLimit = h.EmbedLimit
	}
	if h.WebhookEndpoint != "" {
		cfg.WebhookEndpoint = h.WebhookEndpoint
	}
	cfg = config.ApplyEnv(cfg)

	deliverer := batch.NewHTTPDeliverer(cfg.WebhookEndpoint)
	h.engine = batch.NewEngine(time.Duration(cfg.DeliverMS)*time.Millisecond, cfg.EmbedLimit, deliverer, h.logger)
	h.ingest = batch.NewIngestHandler(h.engine, h.logger, h.RequestIDHeader)

	h.logger.Info("webhook_batch provisioned",
		zap.Int("deliver_ms", cfg.DeliverMS),
		zap.Int("embed_limit", cfg.EmbedLimit),
		zap.String("webhook_endpoint", cfg.WebhookEndpoint))

	return nil
}

// Validate ensures the handler configuration is sane.
func (h *Handler) Validate() error {
	if h.DeliverMS < 0 {
		return fmt.Errorf("deliver_ms must not be negative")
	}
	if h.EmbedLimit < 0 {
		return fmt.Errorf("embed_limit must not be negative")
	}
	return nil
}

// Cleanup drains the Engine, blocking until every in-flight delivery
// completes, mirroring Caddy's own graceful-reload semantics.
func (h *Handler) Cleanup() error {
	if h.engine != nil {
		h.engine.Shutdown()
	}
	return nil
}

// UnmarshalCaddyfile parses the Caddyfile syntax for webhook_batch:
//
//	webhook_batch {
//	    deliver_ms 7000
//	    embed_limit 10
//	    webhook_endpoint https://discord.com/api/webhooks/
//	    request_id_header X-Request-Id
//	}
func (h *Handler) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	for d.Next() {
		for d.NextBlock(0) {
			switch d.Val() {
			case "deliver_ms":
				var val string
				if !d.Args(&val) {
					return d.ArgErr()
				}
				n, err := parseIntArg(val)
				if err != nil {
					return d.Errf("invalid deliver_ms: %v", err)
				}
				h.DeliverMS = n
			case "embed_limit":
				var val string
				if !d.Args(&val) {
					return d.ArgErr()
				}
				n, err := parseIntArg(val)
				if err != nil {
					return d.Errf("invalid embed_limit: %v", err)
				}
				h.EmbedLimit = n
			case "webhook_endpoint":
				if !d.Args(&h.WebhookEndpoint) {
					return d.ArgErr()
				}
			case "request_id_header":
				if !d.Args(&h.RequestIDHeader) {
					return d.ArgErr()
				}
			default:
				return d.Errf("unknown subdirective: %s", d.Val())
			}
		}
	}
	return nil
}

func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var handler Handler
	err := handler.UnmarshalCaddyfile(h.Dispenser)
	return &handler, err
}

func parseIntArg(s string) (int, error) {
	var val int
	_, err := fmt.Sscanf(s, "%d", &val)
	return val, err
}

// Interface guards
var (
	_ caddy.Provisioner           = (*Handler)(nil)
	_ caddy.Validator             = (*Handler)(nil)
	_ caddy.CleanerUpper          = (*Handler)(nil)
	_ caddyhttp.MiddlewareHandler = (*Handler)(nil)
	_ caddyfile.Unmarshaler       = (*Handler)(nil)
)
