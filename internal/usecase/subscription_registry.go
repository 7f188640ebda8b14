package usecase

import (
	"sync"

	"petadopt/internal/domain/repository"
)

type subscriptionHandle uint64

// subscriptionRegistry owns every live query a session opened. Drain disposes
// all of them exactly once; anything added afterwards is disposed on arrival.
type subscriptionRegistry struct {
	mu      sync.Mutex
	next    subscriptionHandle
	subs    map[subscriptionHandle]repository.Subscription
	drained bool
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		subs: make(map[subscriptionHandle]repository.Subscription),
	}
}

// Add registers sub and returns its handle. The zero handle means sub was
// already disposed.
func (r *subscriptionRegistry) Add(sub repository.Subscription) subscriptionHandle {
	if sub == nil {
		return 0
	}

	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		sub.Unsubscribe()
		return 0
	}
	r.next++
	h := r.next
	r.subs[h] = sub
	r.mu.Unlock()

	return h
}

// Release disposes a single subscription ahead of teardown.
func (r *subscriptionRegistry) Release(h subscriptionHandle) {
	if h == 0 {
		return
	}

	r.mu.Lock()
	sub, ok := r.subs[h]
	delete(r.subs, h)
	r.mu.Unlock()

	if ok {
		sub.Unsubscribe()
	}
}

// Drain disposes every registered subscription. Only the first call has an
// effect; it reports whether it was that call.
func (r *subscriptionRegistry) Drain() bool {
	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		return false
	}
	r.drained = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return true
}

func (r *subscriptionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
