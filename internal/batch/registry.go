package batch

import (
	"sync"
	"time"
)

// entry is a live registry slot: the open batch plus the cancellation
// channel for its pending flush timer. Closing cancel wakes the timer
// goroutine early without it ever firing.
type entry struct {
	batch  Batch
	cancel chan struct{}
}

// Registry is the concurrency-safe map from DestinationKey to open
// Batch, guarded by a single coarse-grained mutex so that timer
// firings, inserts, and takes are mutually exclusive (Invariant B: a
// key is in the Registry iff a timer is scheduled for it).
//
// Registry owns no package-level state; one Registry is constructed
// per Engine so tests can run many independent instances side by
// side.
type Registry struct {
	mu              sync.Mutex
	entries         map[DestinationKey]*entry
	deliverDuration time.Duration
	onExpire        func(Batch)

	shutdownCh chan struct{}
	shutdown   bool
	timerWG    sync.WaitGroup
}

// NewRegistry creates an empty Registry. onExpire is invoked, outside
// the Registry's lock, whenever a batch's sliding-window timer fires
// naturally or is cut short by Shutdown.
func NewRegistry(deliverDuration time.Duration, onExpire func(Batch)) *Registry {
	return &Registry{
		entries:         make(map[DestinationKey]*entry),
		deliverDuration: deliverDuration,
		onExpire:        onExpire,
		shutdownCh:      make(chan struct{}),
	}
}

// InsertOrAppend creates a new batch for key if absent (arming its
// flush timer), or appends payload to the existing batch and resets
// its timer so the flush fires DELIVER_DURATION after this, the
// latest, append (the sliding window). It returns a read-only
// snapshot of the batch after insertion and ok=false if the Registry
// is already draining (Shutdown has been called).
func (r *Registry) InsertOrAppend(key DestinationKey, p Payload) (snapshot Batch, ok bool) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return Batch{}, false
	}

	e, exists := r.entries[key]
	if !exists {
		e = &entry{batch: Batch{Key: key, CreatedAt: time.Now(), Payloads: []Payload{p}}}
		r.entries[key] = e
	} else {
		close(e.cancel)
		e.batch.Payloads = append(e.batch.Payloads, p)
	}
	r.armTimer(key, e)
	snapshot = e.batch.clone()
	r.mu.Unlock()

	return snapshot, true
}

// PendingEmbedCount reports the embed count of the currently open
// batch for key, or (0, false) if no batch is open.
func (r *Registry) PendingEmbedCount(key DestinationKey) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return 0, false
	}
	return e.batch.EmbedCount(), true
}

// Take removes and returns the batch for key, cancelling its timer as
// part of the same atomic step. Take is the single linearisation
// point for a key: whichever caller (timer, capacity trigger, or
// shutdown) observes ok=true owns delivery of the batch; everyone else
// racing for the same key observes ok=false and does nothing.
func (r *Registry) Take(key DestinationKey) (Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return Batch{}, false
	}
	delete(r.entries, key)
	close(e.cancel)
	return e.batch, true
}

// GoDeliver schedules onExpire(b) to run in its own goroutine, tracked
// by the same rendezvous counter Shutdown waits on. Used by capacity
// triggers: the delivery of the displaced batch must not block the
// caller (the producer's acknowledgement happens before delivery), but
// Shutdown must still be able to wait for it to finish.
func (r *Registry) GoDeliver(b Batch) {
	r.timerWG.Add(1)
	go func() {
		defer r.timerWG.Done()
		r.onExpire(b)
	}()
}

// armTimer spawns the goroutine backing key's flush timer. Callers
// must hold r.mu.
func (r *Registry) armTimer(key DestinationKey, e *entry) {
	cancel := make(chan struct{})
	e.cancel = cancel

	r.timerWG.Add(1)
	go func() {
		defer r.timerWG.Done()

		timer := time.NewTimer(r.deliverDuration)
		defer timer.Stop()

		// If timer.C fires in the same instant InsertOrAppend or Take
		// closes cancel, select may still pick this case. The entry is
		// only taken if it still belongs to this timer, so a superseded
		// timer never flushes the re-armed or freshly created batch.
		select {
		case <-timer.C:
			r.mu.Lock()
			current, live := r.entries[key]
			if !live || current.cancel != cancel {
				r.mu.Unlock()
				return
			}
			delete(r.entries, key)
			close(cancel)
			b := current.batch
			r.mu.Unlock()
			r.onExpire(b)
		case <-cancel:
			return
		case <-r.shutdownCh:
			if b, ok := r.Take(key); ok {
				r.onExpire(b)
			}
			return
		}
	}()
}

// Shutdown broadcasts cancellation to every live flush timer — each
// wakes early, takes its batch, and delivers it exactly as it would on
// natural expiry — then blocks until every in-flight delivery task
// (timer-driven or capacity-triggered) has completed. The caller is
// responsible for having already stopped routing new requests to
// InsertOrAppend; Shutdown itself only prevents further inserts
// racing with the drain, it does not stop the producer-facing
// transport.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	close(r.shutdownCh)
	r.mu.Unlock()

	r.timerWG.Wait()
}

// Len reports the number of currently open batches. Used by tests to
// assert Invariant B/the post-shutdown-empty property.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
