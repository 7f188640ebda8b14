package usecase

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petadopt/internal/domain/entity"
	"petadopt/pkg/errors"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

// unreadCountingCore counts unread recomputations issued by a session.
type unreadCountingCore struct {
	MessagingService
	calls int32
}

func (c *unreadCountingCore) GetTotalUnreadMessages(ctx context.Context, userID string) int {
	atomic.AddInt32(&c.calls, 1)
	return c.MessagingService.GetTotalUnreadMessages(ctx, userID)
}

func (c *unreadCountingCore) count() int32 {
	return atomic.LoadInt32(&c.calls)
}

func newTestSession(env *testEnv, userID string, core MessagingService, onUpdate func()) *MessagingSession {
	user := &entity.User{ID: userID, DisplayName: strings.ToUpper(userID[:1]) + userID[1:], Role: entity.RoleUser}
	return NewMessagingSession(user, core, env.clock, SessionOptions{
		ReadReceiptThrottle:  time.Second,
		UnreadDebounce:       2 * time.Second,
		DeselectRefreshDelay: 500 * time.Millisecond,
		OnUpdate:             onUpdate,
	})
}

// messagesDelivered reports whether the open conversation's live query has
// delivered at least one snapshot.
func messagesDelivered(s *MessagingSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages != nil
}

func TestSession_StartConversationAndSend(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	var updates int32
	alice := newTestSession(env, "alice", env.core, func() { atomic.AddInt32(&updates, 1) })
	defer alice.Close()

	alice.Start(ctx)
	require.NoError(t, alice.StartConversation(ctx, "bob"))

	snap := alice.Snapshot()
	assert.Equal(t, StateConversationActive, snap.State)
	require.NotNil(t, snap.CurrentConversationID)
	assert.Equal(t, "alice_bob", *snap.CurrentConversationID)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Error)

	require.NoError(t, alice.SendMessage(ctx, "Hello"))

	require.Eventually(t, func() bool {
		msgs := alice.Snapshot().CurrentMessages
		return len(msgs) == 1 && msgs[0].Text == "Hello"
	}, waitFor, tick)
	assert.True(t, alice.Snapshot().CurrentMessages[0].IsReadBy("alice"))

	require.Eventually(t, func() bool {
		convs := alice.Snapshot().Conversations
		return len(convs) == 1 && convs[0].LastMessage == "Hello"
	}, waitFor, tick)
	assert.Equal(t, "bob", alice.OtherParticipantID(alice.Snapshot().Conversations[0]))
	assert.Positive(t, atomic.LoadInt32(&updates))
}

func TestSession_OpeningConversationMarksBacklogInOneBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	convID, err := env.core.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		sendText(t, env, convID, "alice", "are you still there?")
	}
	env.store.reset()

	bob := newTestSession(env, "bob", env.core, nil)
	defer bob.Close()
	require.NoError(t, bob.StartConversation(ctx, "alice"))

	require.Eventually(t, func() bool { return len(bob.Snapshot().CurrentMessages) == 5 }, waitFor, tick)
	env.clock.Add(time.Second)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, env.store.batchCount())
	assert.Equal(t, 5, messagesWritten(env.store.batch(0)))
	for _, m := range bob.Snapshot().CurrentMessages {
		assert.True(t, m.IsReadBy("bob"))
	}
}

func TestSession_BurstOfIncomingMessagesIsMarkedInOneBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	convID, err := env.core.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	bob := newTestSession(env, "bob", env.core, nil)
	defer bob.Close()
	require.NoError(t, bob.StartConversation(ctx, "alice"))
	require.Eventually(t, func() bool { return messagesDelivered(bob) }, waitFor, tick)

	for i := 0; i < 5; i++ {
		sendText(t, env, convID, "alice", "woof")
	}
	require.Eventually(t, func() bool { return len(bob.Snapshot().CurrentMessages) == 5 }, waitFor, tick)
	env.store.reset()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, env.store.batchCount())

	env.clock.Add(time.Second)
	require.Eventually(t, func() bool { return env.store.batchCount() == 1 }, waitFor, tick)
	assert.Equal(t, 5, messagesWritten(env.store.batch(0)))

	env.clock.Add(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, env.store.batchCount())
	assert.Equal(t, 0, env.core.GetTotalUnreadMessages(ctx, "bob"))
}

func TestSession_DebouncesUnreadRecomputation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	core := &unreadCountingCore{MessagingService: env.core}
	bob := newTestSession(env, "bob", core, nil)
	defer bob.Close()

	bob.Start(ctx)
	assert.Equal(t, int32(1), core.count())

	for _, other := range []string{"alice", "carol", "dave"} {
		_, err := env.core.GetOrCreateConversation(ctx, "bob", other)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(bob.Snapshot().Conversations) == 3 }, waitFor, tick)
	assert.Equal(t, int32(1), core.count())

	env.clock.Add(2 * time.Second)
	require.Eventually(t, func() bool { return core.count() == 2 }, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), core.count())
}

func TestSession_UnreadTotalFollowsIncomingMessages(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	convID, err := env.core.GetOrCreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	bob := newTestSession(env, "bob", env.core, nil)
	defer bob.Close()
	bob.Start(ctx)
	assert.Equal(t, 0, bob.Snapshot().TotalUnread)

	sendText(t, env, convID, "alice", "hi")
	sendText(t, env, convID, "alice", "hello?")
	require.Eventually(t, func() bool {
		convs := bob.Snapshot().Conversations
		return len(convs) == 1 && convs[0].LastMessage == "hello?"
	}, waitFor, tick)

	env.clock.Add(2 * time.Second)
	require.Eventually(t, func() bool { return bob.Snapshot().TotalUnread == 2 }, waitFor, tick)
}

func TestSession_CloseConversationRefreshesUnreadAfterDelay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	core := &unreadCountingCore{MessagingService: env.core}
	alice := newTestSession(env, "alice", core, nil)
	defer alice.Close()

	require.NoError(t, alice.StartConversation(ctx, "bob"))
	alice.CloseConversation()

	snap := alice.Snapshot()
	assert.Equal(t, StateNoConversationSelected, snap.State)
	assert.Nil(t, snap.CurrentConversationID)
	assert.Empty(t, snap.CurrentMessages)

	env.clock.Add(499 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), core.count())

	env.clock.Add(time.Millisecond)
	require.Eventually(t, func() bool { return core.count() == 1 }, waitFor, tick)

	alice.CloseConversation()
	env.clock.Add(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), core.count())
}

func TestSession_SendFailuresAreReportedInState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := newTestSession(env, "alice", env.core, nil)
	defer alice.Close()

	err := alice.SendMessage(ctx, "hi")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
	require.NotNil(t, alice.Snapshot().Error)
	assert.Equal(t, "No conversation selected", *alice.Snapshot().Error)

	require.NoError(t, alice.StartConversation(ctx, "bob"))
	env.store.reset()

	err = alice.SendMessage(ctx, strings.Repeat("x", 5001))
	assert.True(t, errors.Is(err, errors.CodeValidation))
	require.NotNil(t, alice.Snapshot().Error)
	assert.Equal(t, "Message is too long (maximum 5000 characters)", *alice.Snapshot().Error)
	assert.Equal(t, 0, env.store.writeCount())

	env.store.setFailures(nil, nil, errStoreDown)
	err = alice.SendMessage(ctx, "hi")
	assert.True(t, errors.Is(err, errors.CodeStore))
	assert.Equal(t, "Firestore unavailable", *alice.Snapshot().Error)

	env.store.setFailures(nil, nil, nil)
	require.NoError(t, alice.SendMessage(ctx, "hi"))
	assert.Nil(t, alice.Snapshot().Error)
}

func TestSession_FailedOpenKeepsPreviousConversation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := newTestSession(env, "alice", env.core, nil)
	defer alice.Close()
	require.NoError(t, alice.StartConversation(ctx, "bob"))

	env.store.setFailures(errStoreDown, nil, nil)
	err := alice.StartConversation(ctx, "carol")
	assert.True(t, errors.Is(err, errors.CodeStore))

	snap := alice.Snapshot()
	assert.Equal(t, StateConversationActive, snap.State)
	require.NotNil(t, snap.CurrentConversationID)
	assert.Equal(t, "alice_bob", *snap.CurrentConversationID)
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "Firestore unavailable", *snap.Error)
}

func TestSession_SelectConversation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	convID, err := env.core.GetOrCreateConversation(ctx, "bob", "carol")
	require.NoError(t, err)

	alice := newTestSession(env, "alice", env.core, nil)
	defer alice.Close()
	err = alice.SelectConversation(ctx, convID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))
	assert.Equal(t, StateNoConversationSelected, alice.Snapshot().State)

	carol := newTestSession(env, "carol", env.core, nil)
	defer carol.Close()
	require.NoError(t, carol.SelectConversation(ctx, convID))
	assert.Equal(t, StateConversationActive, carol.Snapshot().State)
}

func TestSession_SwitchingConversationsReleasesPreviousQuery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := newTestSession(env, "alice", env.core, nil)
	defer alice.Close()

	alice.Start(ctx)
	require.NoError(t, alice.StartConversation(ctx, "bob"))
	require.NoError(t, alice.StartConversation(ctx, "carol"))
	require.NoError(t, alice.StartConversation(ctx, "dave"))

	assert.Equal(t, 2, env.memory.SubscriptionCount())
	assert.Equal(t, "alice_dave", *alice.Snapshot().CurrentConversationID)
}

func TestSession_CloseDisposesEverySubscription(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := newTestSession(env, "alice", env.core, nil)

	alice.Start(ctx)
	require.NoError(t, alice.StartConversation(ctx, "bob"))
	require.Equal(t, 2, env.memory.SubscriptionCount())

	alice.Close()
	alice.Close()

	assert.Equal(t, 0, env.memory.SubscriptionCount())
	assert.Error(t, alice.StartConversation(ctx, "carol"))
	assert.Equal(t, 0, env.memory.SubscriptionCount())
}

func TestSession_OtherParticipantID(t *testing.T) {
	env := newTestEnv(t)
	s := newTestSession(env, "bob", env.core, nil)
	defer s.Close()

	assert.Equal(t, "alice", s.OtherParticipantID(&entity.Conversation{Participants: []string{"alice", "bob"}}))
	assert.Equal(t, "", s.OtherParticipantID(nil))
}
