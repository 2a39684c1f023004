package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// namedHandler records which handler ran through the shared out pointer.
func namedHandler(name string, out *string) Handler {
	return func(Message) bool {
		*out = name
		return true
	}
}

func TestBecomeStacksPreviousHandler(t *testing.T) {
	var ran string
	p := newProcessor(nil, "t", DefaultDispatcherName, 4, namedHandler("base", &ran))

	p.invoke("msg")
	assert.Equal(t, "base", ran)

	p.Become(namedHandler("h2", &ran), true)
	p.invoke("msg")
	assert.Equal(t, "h2", ran)

	// Unbecome restores the prior top of stack.
	p.Unbecome()
	p.invoke("msg")
	assert.Equal(t, "base", ran)
}

func TestBecomeReplacesTop(t *testing.T) {
	var ran string
	p := newProcessor(nil, "t", DefaultDispatcherName, 4, namedHandler("base", &ran))

	p.Become(namedHandler("h2", &ran), false)
	assert.Len(t, p.handlers, 1)

	p.invoke("msg")
	assert.Equal(t, "h2", ran)

	// The replaced handler is gone; unbecome on a single-element stack is a
	// no-op and h2 stays active.
	p.Unbecome()
	p.invoke("msg")
	assert.Equal(t, "h2", ran)
}

func TestUnbecomeOnSingleElementStackIsNoOp(t *testing.T) {
	var ran string
	p := newProcessor(nil, "t", DefaultDispatcherName, 4, namedHandler("base", &ran))

	p.Unbecome()
	require.Len(t, p.handlers, 1)

	p.invoke("msg")
	assert.Equal(t, "base", ran)
}

func TestInvokeRepostsHandlerPanic(t *testing.T) {
	p := newProcessor(nil, "t", DefaultDispatcherName, 4, func(msg Message) bool {
		if msg == "boom" {
			panic("kaboom")
		}
		return true
	})

	p.invoke("boom")

	msg, ok := p.mailbox.poll(0)
	require.True(t, ok, "panic must be re-posted to the mailbox")

	failure, ok := msg.(HandlerFailure)
	require.True(t, ok)
	assert.Equal(t, "boom", failure.Msg)
	assert.ErrorContains(t, failure.Err, "kaboom")
}

func TestInvokeUnhandledMessageDoesNotPanic(t *testing.T) {
	p := newProcessor(nil, "t", DefaultDispatcherName, 4, func(Message) bool { return false })

	assert.NotPanics(t, func() { p.invoke("anything") })
	assert.Equal(t, 0, p.mailbox.size())
}

func TestPostReportsMailboxFull(t *testing.T) {
	p := newProcessor(nil, "t", DefaultDispatcherName, 1, func(Message) bool { return true })

	assert.True(t, p.Post("a"))
	assert.False(t, p.Post("b"))
	assert.Equal(t, 1, p.CurrentQueueSize())
}

func TestProcessorAccessors(t *testing.T) {
	p := newProcessor(nil, "id-1", "disp", 32, func(Message) bool { return true })

	assert.Equal(t, "id-1", p.ID())
	assert.Equal(t, "disp", p.DispatcherName())
	assert.Equal(t, 32, p.QueueSize())
	assert.Equal(t, 0, p.CurrentQueueSize())
}
