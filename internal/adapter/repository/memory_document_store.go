package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"petadopt/internal/domain/repository"
	"petadopt/pkg/errors"
)

type serverTimestampSentinel struct{}

type incrementSentinel struct {
	n int64
}

type memoryDocument struct {
	data map[string]interface{}
}

// MemoryDocumentStore is an in-process DocumentStore. It is strongly
// consistent, resolves server timestamps from its clock (strictly increasing
// per store) and delivers live query snapshots asynchronously, in commit order,
// one goroutine per subscription.
type MemoryDocumentStore struct {
	clock clock.Clock

	mu          sync.Mutex
	collections map[string]map[string]*memoryDocument
	lastCommit  time.Time
	subs        map[*memorySubscription]struct{}
}

func NewMemoryDocumentStore(clk clock.Clock) *MemoryDocumentStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryDocumentStore{
		clock:       clk,
		collections: make(map[string]map[string]*memoryDocument),
		subs:        make(map[*memorySubscription]struct{}),
	}
}

var _ repository.DocumentStore = (*MemoryDocumentStore)(nil)

func (s *MemoryDocumentStore) Get(ctx context.Context, collection, id string) (*repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Store("Failed to get document", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, errors.NotFound("Document", nil)
	}
	return &repository.Document{ID: id, Collection: collection, Data: copyMap(doc.data)}, nil
}

func (s *MemoryDocumentStore) Create(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return errors.Store("Failed to create document", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[collection][id]; exists {
		return nil
	}

	now := s.commitTime()
	s.put(collection, id, resolveMap(data, now))
	s.publishLocked(map[string]bool{collection: true})
	return nil
}

func (s *MemoryDocumentStore) Query(ctx context.Context, q repository.Query) ([]*repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Store("Failed to query documents", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runQueryLocked(q), nil
}

func (s *MemoryDocumentStore) Subscribe(ctx context.Context, q repository.Query, onChange repository.SnapshotFunc, onError func(error)) repository.Subscription {
	sub := &memorySubscription{
		store:    s,
		query:    q,
		onChange: onChange,
		onError:  onError,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.push(s.runQueryLocked(q))
	s.mu.Unlock()

	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub
}

func (s *MemoryDocumentStore) BatchWrite(ctx context.Context, writes []repository.Write) error {
	if err := ctx.Err(); err != nil {
		return errors.Store("Failed to commit batch", err)
	}
	if len(writes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch first so that it applies atomically.
	pending := make(map[string]bool)
	for _, w := range writes {
		key := w.Collection + "/" + w.DocID
		_, exists := s.collections[w.Collection][w.DocID]
		switch w.Kind {
		case repository.WriteCreate:
			if exists || pending[key] {
				return errors.Store("Failed to commit batch", fmt.Errorf("document %s already exists", key))
			}
			pending[key] = true
		case repository.WriteUpdate:
			if !exists && !pending[key] {
				return errors.Store("Failed to commit batch", fmt.Errorf("no document to update: %s", key))
			}
		default:
			return errors.Store("Failed to commit batch", fmt.Errorf("unknown write kind %d", w.Kind))
		}
	}

	now := s.commitTime()
	touched := make(map[string]bool)
	for _, w := range writes {
		touched[w.Collection] = true
		if w.Kind == repository.WriteCreate {
			s.put(w.Collection, w.DocID, resolveMap(w.Data, now))
			continue
		}
		doc := s.collections[w.Collection][w.DocID]
		for _, u := range w.Updates {
			applyUpdate(doc.data, u.Path, u.Value, now)
		}
	}

	s.publishLocked(touched)
	return nil
}

func (s *MemoryDocumentStore) NewDocumentID(collection string) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (s *MemoryDocumentStore) ServerTimestamp() interface{} {
	return serverTimestampSentinel{}
}

func (s *MemoryDocumentStore) Increment(n int64) interface{} {
	return incrementSentinel{n: n}
}

// Put stores a document verbatim, bypassing timestamp resolution. Used to seed
// fixtures and imports.
func (s *MemoryDocumentStore) Put(collection, id string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(collection, id, resolveMap(data, s.commitTime()))
	s.publishLocked(map[string]bool{collection: true})
}

// FailListeners reports err to every live query on collection, the way a
// dropped backend listener would. Subscriptions stay registered and keep
// receiving snapshots. It returns the number of listeners notified.
func (s *MemoryDocumentStore) FailListeners(collection string, err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for sub := range s.subs {
		if sub.query.Collection == collection {
			sub.fail(err)
			n++
		}
	}
	return n
}

// SubscriptionCount returns the number of live queries currently registered.
func (s *MemoryDocumentStore) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *MemoryDocumentStore) put(collection, id string, data map[string]interface{}) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*memoryDocument)
		s.collections[collection] = docs
	}
	docs[id] = &memoryDocument{data: data}
}

// commitTime is the store's clock, forced strictly increasing across commits.
func (s *MemoryDocumentStore) commitTime() time.Time {
	now := s.clock.Now()
	if !now.After(s.lastCommit) {
		now = s.lastCommit.Add(time.Microsecond)
	}
	s.lastCommit = now
	return now
}

func (s *MemoryDocumentStore) publishLocked(touched map[string]bool) {
	for sub := range s.subs {
		if touched[sub.query.Collection] {
			sub.push(s.runQueryLocked(sub.query))
		}
	}
}

func (s *MemoryDocumentStore) removeSubscription(sub *memorySubscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

func (s *MemoryDocumentStore) runQueryLocked(q repository.Query) []*repository.Document {
	var out []*repository.Document
	for id, doc := range s.collections[q.Collection] {
		if !matches(doc.data, q) {
			continue
		}
		out = append(out, &repository.Document{ID: id, Collection: q.Collection, Data: copyMap(doc.data)})
	}

	sort.Slice(out, func(i, j int) bool {
		if q.OrderBy != nil {
			c := compareValues(out[i].Data[q.OrderBy.Field], out[j].Data[q.OrderBy.Field])
			if c != 0 {
				if q.OrderBy.Direction == repository.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func matches(data map[string]interface{}, q repository.Query) bool {
	for _, f := range q.Filters {
		v, ok := data[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case repository.OpEqual:
			if compareValues(v, normalize(f.Value)) != 0 {
				return false
			}
		case repository.OpArrayContains:
			arr, _ := v.([]interface{})
			found := false
			for _, item := range arr {
				if compareValues(item, normalize(f.Value)) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	// Ordered queries skip documents that lack the ordering field.
	if q.OrderBy != nil {
		if _, ok := data[q.OrderBy.Field]; !ok {
			return false
		}
	}
	return true
}

type memorySubscription struct {
	store    *MemoryDocumentStore
	query    repository.Query
	onChange repository.SnapshotFunc
	onError  func(error)

	mu         sync.Mutex
	pending    []*repository.Document
	hasPending bool
	errs       []error

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// push replaces any undelivered snapshot; each snapshot is a full result set.
func (s *memorySubscription) push(docs []*repository.Document) {
	s.mu.Lock()
	s.pending = docs
	s.hasPending = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// fail queues err for delivery on the subscription goroutine.
func (s *memorySubscription) fail(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		s.mu.Lock()
		docs, ok := s.pending, s.hasPending
		errs := s.errs
		s.pending, s.hasPending, s.errs = nil, false, nil
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
		}
		if s.onError != nil {
			for _, err := range errs {
				s.onError(err)
			}
		}
		if ok {
			s.onChange(docs)
		}
	}
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.store.removeSubscription(s)
		close(s.done)
	})
}
