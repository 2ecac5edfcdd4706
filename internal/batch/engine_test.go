package batch

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []Payload
	fail      bool
}

func (f *fakeDeliverer) Deliver(key DestinationKey, merged Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errTest
	}
	f.delivered = append(f.delivered, merged)
	return nil
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

var errTest = &TaxonomyError{Code: 0, Message: "forced delivery failure"}

func embedPayload(n int) Payload {
	embeds := make([]json.RawMessage, n)
	for i := range embeds {
		embeds[i] = json.RawMessage(`{}`)
	}
	return Payload{Embeds: embeds}
}

func TestEngineRejectsOversizedPayload(t *testing.T) {
	e := NewEngine(time.Hour, 3, &fakeDeliverer{}, zap.NewNop())

	_, err := e.Ingest(testKey("1"), embedPayload(4))
	if err == nil {
		t.Fatalf("expected error for oversized payload")
	}
	taxErr, ok := err.(*TaxonomyError)
	if !ok {
		t.Fatalf("expected *TaxonomyError, got %T", err)
	}
	if taxErr.Code != ErrCodeCapacityInvalid {
		t.Errorf("expected code %d, got %d", ErrCodeCapacityInvalid, taxErr.Code)
	}
}

func TestEngineCapacityTriggerSplitsAtLimit(t *testing.T) {
	// EMBED_LIMIT=3, four 1-embed payloads arriving in sequence: the
	// first three fill the batch exactly (3 == limit is not a split
	// trigger), the fourth pushes over and forces a flush of the first
	// three before starting a new batch of size 1.
	deliverer := &fakeDeliverer{}
	e := NewEngine(time.Hour, 3, deliverer, zap.NewNop())
	key := testKey("1")

	for i := 0; i < 3; i++ {
		if _, err := e.Ingest(key, embedPayload(1)); err != nil {
			t.Fatalf("unexpected error on payload %d: %v", i, err)
		}
	}
	if pending, _ := e.registry.PendingEmbedCount(key); pending != 3 {
		t.Fatalf("expected 3 pending embeds after filling batch, got %d", pending)
	}

	if _, err := e.Ingest(key, embedPayload(1)); err != nil {
		t.Fatalf("unexpected error on 4th payload: %v", err)
	}

	// The displaced batch delivers asynchronously; wait for it.
	deadline := time.Now().Add(time.Second)
	for deliverer.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if got := deliverer.count(); got != 1 {
		t.Fatalf("expected exactly 1 delivery from the capacity trigger so far, got %d", got)
	}
	delivered := deliverer.delivered[0]
	if len(delivered.Embeds) != 3 {
		t.Errorf("expected displaced batch to carry 3 embeds, got %d", len(delivered.Embeds))
	}

	pending, open := e.registry.PendingEmbedCount(key)
	if !open {
		t.Fatalf("expected a fresh batch to be open after the capacity trigger")
	}
	if pending != 1 {
		t.Errorf("expected fresh batch to hold the 4th payload's 1 embed, got %d", pending)
	}
}

func TestEngineShutdownDeliversOpenBatches(t *testing.T) {
	deliverer := &fakeDeliverer{}
	e := NewEngine(time.Hour, 10, deliverer, zap.NewNop())

	e.Ingest(testKey("1"), Payload{Content: strPtr("hi")})
	e.Ingest(testKey("2"), Payload{Content: strPtr("there")})

	e.Shutdown()

	if got := deliverer.count(); got != 2 {
		t.Errorf("expected 2 deliveries after shutdown, got %d", got)
	}
	if e.OpenBatchCount() != 0 {
		t.Errorf("expected no open batches after shutdown, got %d", e.OpenBatchCount())
	}
}

func TestEngineIngestFailsAfterShutdown(t *testing.T) {
	e := NewEngine(time.Hour, 10, &fakeDeliverer{}, zap.NewNop())
	e.Shutdown()

	_, err := e.Ingest(testKey("1"), Payload{Content: strPtr("hi")})
	if err == nil {
		t.Fatalf("expected error ingesting after shutdown")
	}
}
