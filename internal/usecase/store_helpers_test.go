package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	storeadapter "petadopt/internal/adapter/repository"
	"petadopt/internal/domain/repository"
	"petadopt/pkg/errors"
)

// instrumentedStore wraps a DocumentStore, records writes and can be told to
// fail specific operations.
type instrumentedStore struct {
	repository.DocumentStore

	mu        sync.Mutex
	creates   int
	batches   [][]repository.Write
	failGet   error
	failQuery error
	failBatch error

	// beforeBatch, when set, runs once ahead of the next BatchWrite.
	beforeBatch func()
}

func (s *instrumentedStore) Get(ctx context.Context, collection, id string) (*repository.Document, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return s.DocumentStore.Get(ctx, collection, id)
}

func (s *instrumentedStore) Create(ctx context.Context, collection, id string, data map[string]interface{}) error {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return s.DocumentStore.Create(ctx, collection, id, data)
}

func (s *instrumentedStore) Query(ctx context.Context, q repository.Query) ([]*repository.Document, error) {
	s.mu.Lock()
	fail := s.failQuery
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return s.DocumentStore.Query(ctx, q)
}

func (s *instrumentedStore) BatchWrite(ctx context.Context, writes []repository.Write) error {
	s.mu.Lock()
	hook := s.beforeBatch
	s.beforeBatch = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	fail := s.failBatch
	if fail == nil {
		s.batches = append(s.batches, writes)
	}
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.DocumentStore.BatchWrite(ctx, writes)
}

func (s *instrumentedStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates + len(s.batches)
}

func (s *instrumentedStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *instrumentedStore) batch(i int) []repository.Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[i]
}

func (s *instrumentedStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = 0
	s.batches = nil
}

func (s *instrumentedStore) onNextBatch(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeBatch = hook
}

func (s *instrumentedStore) setFailures(get, query, batch error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet, s.failQuery, s.failBatch = get, query, batch
}

type testEnv struct {
	clock  *clock.Mock
	memory *storeadapter.MemoryDocumentStore
	store  *instrumentedStore
	core   *MessagingUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	memory := storeadapter.NewMemoryDocumentStore(mock)
	store := &instrumentedStore{DocumentStore: memory}

	return &testEnv{
		clock:  mock,
		memory: memory,
		store:  store,
		core:   NewMessagingUseCase(store),
	}
}

// messagesWritten counts the message documents touched by a batch.
func messagesWritten(writes []repository.Write) int {
	n := 0
	for _, w := range writes {
		if w.Collection != CollectionConversations {
			n++
		}
	}
	return n
}

var errStoreDown = errors.Store("Firestore unavailable", context.DeadlineExceeded)
