package batch

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// deliveryClientTimeout bounds the outbound connection, guarding
// against a hung upstream leaking a goroutine forever. It is not a
// deadline on the batching decision itself — the window and capacity
// rules that decide when to flush are independent of how long
// delivery then takes.
const deliveryClientTimeout = 30 * time.Second

// HTTPDeliverer posts merged batches to a chat-platform webhook
// endpoint. One HTTPDeliverer (and its one http.Client) is shared
// across every destination an Engine serves.
type HTTPDeliverer struct {
	client       *http.Client
	endpointBase string
}

// NewHTTPDeliverer builds a deliverer that posts to
// endpointBase+{webhook_id}/{webhook_token}?{query}. endpointBase must
// end in "/".
func NewHTTPDeliverer(endpointBase string) *HTTPDeliverer {
	return &HTTPDeliverer{
		client:       &http.Client{Timeout: deliveryClientTimeout},
		endpointBase: endpointBase,
	}
}

// Deliver implements Deliverer. Responses with status 400 or above and
// transport errors are both reported as an error for the caller to log;
// neither is retried.
func (d *HTTPDeliverer) Deliver(key DestinationKey, merged Payload) error {
	body, err := MarshalOutbound(merged)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, key.URL(d.endpointBase), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("batch: build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("batch: delivery request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("batch: upstream rejected delivery with status %d", resp.StatusCode)
	}
	return nil
}
