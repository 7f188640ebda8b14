package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petadopt/internal/domain/repository"
	"petadopt/pkg/errors"
)

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps [][]*repository.Document
}

func (r *snapshotRecorder) record(docs []*repository.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, docs)
}

func (r *snapshotRecorder) last() []*repository.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func ids(docs []*repository.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestMemoryStore_GetMissingDocumentIsNotFound(t *testing.T) {
	store := NewMemoryDocumentStore(clock.NewMock())

	doc, err := store.Get(context.Background(), "conversations", "nope")

	assert.Nil(t, doc)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMemoryStore_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(clock.NewMock())

	require.NoError(t, store.Create(ctx, "conversations", "a_b", map[string]interface{}{"lastMessage": ""}))
	require.NoError(t, store.Create(ctx, "conversations", "a_b", map[string]interface{}{"lastMessage": "other"}))

	docs, err := store.Query(ctx, repository.Query{Collection: "conversations"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "", docs[0].Data["lastMessage"])
}

func TestMemoryStore_ServerTimestampsAreStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	store := NewMemoryDocumentStore(mock)

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, store.Create(ctx, "msgs", id, map[string]interface{}{
			"createdAt": store.ServerTimestamp(),
			"readBy":    map[string]interface{}{"alice": store.ServerTimestamp()},
		}))
	}

	docs, err := store.Query(ctx, repository.Query{
		Collection: "msgs",
		OrderBy:    &repository.OrderBy{Field: "createdAt", Direction: repository.Asc},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(docs))

	first := docs[0].Data["createdAt"].(time.Time)
	second := docs[1].Data["createdAt"].(time.Time)
	assert.True(t, second.After(first))
	assert.Equal(t, first, docs[0].Data["readBy"].(map[string]interface{})["alice"])
}

func TestMemoryStore_QueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(clock.NewMock())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Put("conversations", "a_b", map[string]interface{}{
		"participants":    []string{"a", "b"},
		"lastMessageTime": base.Add(time.Minute),
	})
	store.Put("conversations", "a_c", map[string]interface{}{
		"participants":    []string{"a", "c"},
		"lastMessageTime": base.Add(2 * time.Minute),
	})
	store.Put("conversations", "b_c", map[string]interface{}{
		"participants":    []string{"b", "c"},
		"lastMessageTime": base.Add(3 * time.Minute),
	})
	store.Put("conversations", "a_d", map[string]interface{}{
		"participants": []string{"a", "d"},
	})

	docs, err := store.Query(ctx, repository.Query{
		Collection: "conversations",
		Filters:    []repository.Filter{{Field: "participants", Op: repository.OpArrayContains, Value: "a"}},
		OrderBy:    &repository.OrderBy{Field: "lastMessageTime", Direction: repository.Desc},
	})
	require.NoError(t, err)
	// a_d has no lastMessageTime and is excluded from the ordered query.
	assert.Equal(t, []string{"a_c", "a_b"}, ids(docs))

	docs, err = store.Query(ctx, repository.Query{
		Collection: "conversations",
		Filters:    []repository.Filter{{Field: "lastMessageTime", Op: repository.OpEqual, Value: base.Add(3 * time.Minute)}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b_c"}, ids(docs))
}

func TestMemoryStore_BatchWriteAppliesUpdatesAndIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(clock.NewMock())
	store.Put("conversations", "a_b", map[string]interface{}{
		"unreadCountByUser": map[string]int{},
	})

	err := store.BatchWrite(ctx, []repository.Write{
		{
			Kind:       repository.WriteCreate,
			Collection: "conversations/a_b/messages",
			DocID:      "m1",
			Data:       map[string]interface{}{"text": "hi"},
		},
		{
			Kind:       repository.WriteUpdate,
			Collection: "conversations",
			DocID:      "a_b",
			Updates: []repository.Update{
				{Path: repository.FieldPath{"lastMessage"}, Value: "hi"},
				{Path: repository.FieldPath{"unreadCountByUser", "b"}, Value: store.Increment(1)},
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, store.BatchWrite(ctx, []repository.Write{{
		Kind:       repository.WriteUpdate,
		Collection: "conversations",
		DocID:      "a_b",
		Updates:    []repository.Update{{Path: repository.FieldPath{"unreadCountByUser", "b"}, Value: store.Increment(2)}},
	}}))

	doc, err := store.Get(ctx, "conversations", "a_b")
	require.NoError(t, err)
	assert.Equal(t, "hi", doc.Data["lastMessage"])
	assert.Equal(t, int64(3), doc.Data["unreadCountByUser"].(map[string]interface{})["b"])

	msg, err := store.Get(ctx, "conversations/a_b/messages", "m1")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Data["text"])
}

func TestMemoryStore_BatchWriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(clock.NewMock())

	err := store.BatchWrite(ctx, []repository.Write{
		{Kind: repository.WriteCreate, Collection: "c", DocID: "new", Data: map[string]interface{}{"x": 1}},
		{Kind: repository.WriteUpdate, Collection: "c", DocID: "missing", Updates: []repository.Update{
			{Path: repository.FieldPath{"x"}, Value: 2},
		}},
	})

	assert.True(t, errors.Is(err, errors.CodeStore))
	_, err = store.Get(ctx, "c", "new")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(clock.NewMock())
	store.Put("c", "d", map[string]interface{}{"readBy": map[string]interface{}{}})

	doc, err := store.Get(ctx, "c", "d")
	require.NoError(t, err)
	doc.Data["readBy"].(map[string]interface{})["mallory"] = time.Now()

	again, err := store.Get(ctx, "c", "d")
	require.NoError(t, err)
	assert.Empty(t, again.Data["readBy"])
}

func TestMemoryStore_SubscribeDeliversInitialAndSubsequentSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(clock.NewMock())
	rec := &snapshotRecorder{}

	sub := store.Subscribe(ctx, repository.Query{Collection: "msgs"}, rec.record, func(error) {})
	defer sub.Unsubscribe()

	assert.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.last())

	require.NoError(t, store.Create(ctx, "msgs", "m1", map[string]interface{}{"text": "a"}))
	assert.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, store.Create(ctx, "other", "x", map[string]interface{}{}))
	require.NoError(t, store.Create(ctx, "msgs", "m2", map[string]interface{}{"text": "b"}))
	assert.Eventually(t, func() bool { return len(rec.last()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_UnsubscribeStopsDeliveryAndIsRepeatable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(clock.NewMock())
	rec := &snapshotRecorder{}

	sub := store.Subscribe(ctx, repository.Query{Collection: "msgs"}, rec.record, func(error) {})
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, store.SubscriptionCount())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, store.SubscriptionCount())

	require.NoError(t, store.Create(ctx, "msgs", "m1", map[string]interface{}{}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestMemoryStore_CancelledContextReleasesSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryDocumentStore(clock.NewMock())

	store.Subscribe(ctx, repository.Query{Collection: "msgs"}, func([]*repository.Document) {}, func(error) {})
	assert.Equal(t, 1, store.SubscriptionCount())

	cancel()
	assert.Eventually(t, func() bool { return store.SubscriptionCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_FailListenersKeepsSubscriptionAlive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(clock.NewMock())
	rec := &snapshotRecorder{}

	var mu sync.Mutex
	var reported []error
	onError := func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}

	sub := store.Subscribe(ctx, repository.Query{Collection: "msgs"}, rec.record, onError)
	defer sub.Unsubscribe()
	other := store.Subscribe(ctx, repository.Query{Collection: "other"}, func([]*repository.Document) {}, func(error) {
		t.Error("listener on another collection must not fail")
	})
	defer other.Unsubscribe()
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, store.FailListeners("msgs", errors.Listener("Live query failed", context.DeadlineExceeded)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.True(t, errors.Is(reported[0], errors.CodeListener))
	mu.Unlock()

	require.NoError(t, store.Create(ctx, "msgs", "m1", map[string]interface{}{"text": "a"}))
	assert.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, store.SubscriptionCount())
}
