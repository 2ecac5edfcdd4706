// Package batch implements the per-destination batching engine: the
// keyed in-memory registry of open batches, the sliding-window flush
// timers, the payload merge rules, and the shutdown drain protocol.
package batch

import (
	"encoding/json"
	"time"
)

// Payload is one producer submission. Absent optional fields are nil
// so the merge rules in Merge can distinguish "not supplied" from
// "supplied as zero value."
type Payload struct {
	Content         *string           `json:"content,omitempty"`
	Username        *string           `json:"username,omitempty"`
	AvatarURL       *string           `json:"avatar_url,omitempty"`
	ThreadName      *string           `json:"thread_name,omitempty"`
	TTS             *bool             `json:"tts,omitempty"`
	AllowedMentions json.RawMessage   `json:"allowed_mentions,omitempty"`
	Embeds          []json.RawMessage `json:"embeds,omitempty"`
	Components      []json.RawMessage `json:"components,omitempty"`
}

// EmbedCount returns the number of embeds this payload carries.
func (p Payload) EmbedCount() int {
	return len(p.Embeds)
}

// DestinationKey is the identity two requests must share to land in
// the same batch: the webhook ID, webhook token, and raw query string.
// It is a plain comparable struct so it can be used directly as a map
// key with structural equality.
type DestinationKey struct {
	WebhookID    string
	WebhookToken string
	Query        string
}

// BatchID is the X-Batch-Id value for this destination.
func (k DestinationKey) BatchID() string {
	return k.WebhookID + "-" + k.WebhookToken
}

// URL builds the upstream delivery URL for this destination against
// the given endpoint base (which must end in "/").
func (k DestinationKey) URL(endpointBase string) string {
	u := endpointBase + k.WebhookID + "/" + k.WebhookToken
	if k.Query != "" {
		u += "?" + k.Query
	}
	return u
}

// Batch is the aggregate of payloads accumulated for one destination
// during an open flush window.
type Batch struct {
	Key       DestinationKey
	CreatedAt time.Time
	Payloads  []Payload
}

// EmbedCount returns the sum of embed counts across every payload
// currently in the batch (Invariant A).
func (b Batch) EmbedCount() int {
	total := 0
	for _, p := range b.Payloads {
		total += p.EmbedCount()
	}
	return total
}

// clone returns a copy of b whose Payloads slice is independent of the
// registry's backing slice, safe to hand out as a read-only snapshot.
func (b Batch) clone() Batch {
	cp := make([]Payload, len(b.Payloads))
	copy(cp, b.Payloads)
	return Batch{Key: b.Key, CreatedAt: b.CreatedAt, Payloads: cp}
}

// Error taxonomy codes, stable across releases.
const (
	ErrCodePathInvalid     = 100
	ErrCodeBodyInvalid     = 101
	ErrCodeCapacityInvalid = 102
)

// TaxonomyError is a validation failure surfaced synchronously to the
// producer as {"code": N, "message": "..."}.
type TaxonomyError struct {
	Code       int
	Message    string
	HTTPStatus int
}

func (e *TaxonomyError) Error() string {
	return e.Message
}

func newTaxonomyError(httpStatus, code int, message string) *TaxonomyError {
	return &TaxonomyError{Code: code, Message: message, HTTPStatus: httpStatus}
}
