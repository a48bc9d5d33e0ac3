package store

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/signalhub/internal/signal"
)

// Subscription is one consumer's view of store change notifications.
//
// C is closed when the subscription ends. Consumers should range over C
// until it closes; a slow consumer loses its oldest pending notifications
// rather than slowing publishers (see Dropped).
//
// Only upserts are delivered. Signals removed by Store.Reconcile produce
// no notification; a consumer that must track removals re-reads GetAll.
type Subscription struct {
	// ID uniquely identifies the subscription.
	ID string

	// C delivers change notifications in acceptance order.
	C <-chan signal.Signal

	ch        chan signal.Signal
	store     *Store
	dropped   atomic.Uint64
	closeOnce sync.Once

	stopMu    sync.Mutex
	stopAfter func() bool
}

// Dropped returns how many notifications were discarded for this
// subscriber because its buffer was full.
func (sub *Subscription) Dropped() uint64 {
	return sub.dropped.Load()
}

// Close releases the subscription. Safe to call multiple times and
// concurrently with publishers.
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		sub.stopMu.Lock()
		stop := sub.stopAfter
		sub.stopMu.Unlock()
		if stop != nil {
			stop()
		}
		sub.store.unsubscribe(sub)
	})
}

func (sub *Subscription) setStop(stop func() bool) {
	sub.stopMu.Lock()
	sub.stopAfter = stop
	sub.stopMu.Unlock()
}

// deliver enqueues sig without blocking, discarding the oldest pending
// notification when the buffer is full. Reports whether one was dropped.
// Caller holds the store write lock, so it is the only sender.
func (sub *Subscription) deliver(sig signal.Signal) bool {
	select {
	case sub.ch <- sig:
		return false
	default:
	}

	select {
	case <-sub.ch:
	default:
	}
	sub.dropped.Add(1)

	select {
	case sub.ch <- sig:
	default:
		// Unreachable while the store lock serialises senders.
	}
	return true
}
