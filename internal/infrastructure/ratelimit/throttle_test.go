package ratelimit

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestThrottler_FirstTriggerRunsImmediately(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	th := NewThrottler(mock, time.Second, func() { atomic.AddInt32(&calls, 1) })

	assert.True(t, th.TryRun())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, th.TryRun())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestThrottler_BurstCollapsesIntoOneTrailingRun(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	th := NewThrottler(mock, time.Second, func() { atomic.AddInt32(&calls, 1) })

	for i := 0; i < 10; i++ {
		th.Trigger()
		mock.Add(50 * time.Millisecond)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	mock.Add(time.Second)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestThrottler_RunsAgainAfterWindow(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	th := NewThrottler(mock, time.Second, func() { atomic.AddInt32(&calls, 1) })

	th.Trigger()
	mock.Add(time.Second)
	assert.True(t, th.TryRun())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestThrottler_StopCancelsTrailingRun(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	th := NewThrottler(mock, time.Second, func() { atomic.AddInt32(&calls, 1) })

	th.Trigger()
	th.Trigger()
	th.Stop()
	mock.Add(2 * time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, th.TryRun())
}
