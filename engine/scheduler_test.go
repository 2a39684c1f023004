package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduledResultString(t *testing.T) {
	assert.Equal(t, "posted", Posted.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "failed_unregistered", FailedUnregistered.String())
	assert.Equal(t, "failed_queue_full", FailedQueueFull.String())
}

func TestSchedulePosted(t *testing.T) {
	e := newTestEngine(t, testConfig([]string{"w"}))

	received := make(chan Message, 4)
	_, err := e.NewProcessor("target", func(msg Message) bool {
		received <- msg
		return true
	}).WithDispatcher("w").Register()
	require.NoError(t, err)

	s := e.Scheduler().Schedule("target", "ping", 20*time.Millisecond)
	assert.Equal(t, Posted, s.Result())

	select {
	case got := <-received:
		assert.Equal(t, "ping", got)
	case <-time.After(10 * time.Second):
		t.Fatal("scheduled message not delivered")
	}
}

// S3: cancelled before firing.
func TestScheduleCancelledBeforeFiring(t *testing.T) {
	e := newTestEngine(t, testConfig([]string{"w"}))

	var counter atomic.Int64
	_, err := e.NewProcessor("target", func(Message) bool {
		counter.Add(1)
		return true
	}).WithDispatcher("w").Register()
	require.NoError(t, err)

	s := e.Scheduler().Schedule("target", "ping", 50*time.Millisecond)
	assert.True(t, s.Cancel())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, Cancelled, s.Result())
	assert.Equal(t, int64(0), counter.Load(), "cancelled schedule must not deliver")

	// Cancel is idempotent; the second call reports no effect.
	assert.False(t, s.Cancel())
}

// S4: scheduled delivery to an unregistered id.
func TestScheduleUnregisteredTarget(t *testing.T) {
	e := newTestEngine(t, testConfig([]string{"w"}))

	s := e.Scheduler().Schedule("does-not-exist", "x", 10*time.Millisecond)
	assert.Equal(t, FailedUnregistered, s.Result())
}

func TestScheduleQueueFull(t *testing.T) {
	e := newTestEngine(t, testConfig([]string{"w"}))

	latch := make(chan struct{})
	t.Cleanup(func() { close(latch) })

	p, err := e.NewProcessor("busy", func(Message) bool {
		<-latch
		return true
	}).WithDispatcher("w").WithQueueSize(1).Register()
	require.NoError(t, err)

	// Occupy the worker, then fill the single mailbox slot.
	require.True(t, p.Post("block"))
	require.Eventually(t, func() bool {
		return p.CurrentQueueSize() == 0
	}, 10*time.Second, time.Millisecond)
	require.True(t, p.Post("filler"))

	s := e.Scheduler().Schedule("busy", "overflow", 10*time.Millisecond)
	assert.Equal(t, FailedQueueFull, s.Result())
}

// P7: the outcome completes exactly once and stays stable.
func TestScheduleOutcomeIsStable(t *testing.T) {
	e := newTestEngine(t, testConfig([]string{"w"}))

	s := e.Scheduler().Schedule("does-not-exist", "x", 5*time.Millisecond)
	first := s.Result()

	assert.False(t, s.Cancel(), "cancel after completion has no effect")
	assert.Equal(t, first, s.Result())
	assert.Equal(t, FailedUnregistered, first)
}

func TestScheduleIDsAreUnique(t *testing.T) {
	e := newTestEngine(t, testConfig([]string{"w"}))

	s1 := e.Scheduler().Schedule("x", 1, time.Minute)
	s2 := e.Scheduler().Schedule("x", 2, time.Minute)
	assert.NotEqual(t, s1.ID(), s2.ID())

	s1.Cancel()
	s2.Cancel()
}

func TestShutdownCancelsPendingSchedules(t *testing.T) {
	e, err := New(testConfig([]string{"w"}))
	require.NoError(t, err)
	e.Start()

	s := e.Scheduler().Schedule("whatever", "x", time.Hour)
	e.Shutdown()

	assert.Equal(t, Cancelled, s.Result())
}

func TestScheduleCron(t *testing.T) {
	e := newTestEngine(t, testConfig([]string{"w"}))

	var counter atomic.Int64
	_, err := e.NewProcessor("tick", func(Message) bool {
		counter.Add(1)
		return true
	}).WithDispatcher("w").Register()
	require.NoError(t, err)

	cs, err := e.Scheduler().ScheduleCron("tick", "beat", "@every 50ms")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return counter.Load() >= 2
	}, 10*time.Second, 10*time.Millisecond)

	cs.Stop()
	settled := counter.Load()
	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, counter.Load(), settled+1,
		"at most one firing may race the stop")
}

func TestScheduleCronInvalidExpression(t *testing.T) {
	e := newTestEngine(t, testConfig([]string{"w"}))

	_, err := e.Scheduler().ScheduleCron("tick", "beat", "not a cron expr")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCronExpr)
}
