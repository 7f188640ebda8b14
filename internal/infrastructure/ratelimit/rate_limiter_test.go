package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_ExhaustsAndRefills(t *testing.T) {
	mock := clock.NewMock()
	tb := NewTokenBucket(mock, 2, 1, time.Second)

	ok, _ := tb.Allow()
	assert.True(t, ok)
	ok, _ = tb.Allow()
	assert.True(t, ok)

	ok, wait := tb.Allow()
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	mock.Add(time.Second)
	ok, _ = tb.Allow()
	assert.True(t, ok)
	assert.Equal(t, 0, tb.GetTokens())
}

func TestRateLimiter_KeysByUserAndAction(t *testing.T) {
	mock := clock.NewMock()
	rl := NewRateLimiter(mock)

	for i := 0; i < 10; i++ {
		ok, _ := rl.Allow("alice", ActionStartConversation)
		assert.True(t, ok)
	}
	ok, wait := rl.Allow("alice", ActionStartConversation)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)

	ok, _ = rl.Allow("bob", ActionStartConversation)
	assert.True(t, ok)
	ok, _ = rl.Allow("alice", ActionSendMessage)
	assert.True(t, ok)

	tokens, max := rl.GetStatus("alice", ActionSendMessage)
	assert.Equal(t, 29, tokens)
	assert.Equal(t, 30, max)
}

func TestRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	mock := clock.NewMock()
	rl := NewRateLimiter(mock)

	rl.Allow("alice", ActionSendMessage)
	mock.Add(2 * time.Hour)
	rl.Allow("bob", ActionSendMessage)
	rl.Cleanup()

	_, max := rl.GetStatus("alice", ActionSendMessage)
	assert.Equal(t, 0, max)
	_, max = rl.GetStatus("bob", ActionSendMessage)
	assert.Equal(t, 30, max)
}
