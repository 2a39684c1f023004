package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeWaitFreshWorkPollsImmediately(t *testing.T) {
	assert.Equal(t, time.Duration(0), computeWait(0, 0))
	assert.Equal(t, time.Duration(0), computeWait(0, 100))
}

func TestComputeWaitSaturates(t *testing.T) {
	for _, noTask := range []int{1, 10, 40, 1000} {
		wait := computeWait(noTask, 1)
		assert.GreaterOrEqual(t, wait, time.Duration(0))
		assert.LessOrEqual(t, wait, time.Duration(maxPollMS)*time.Millisecond)
	}
	assert.Equal(t, time.Duration(maxPollMS)*time.Millisecond, computeWait(10_000, 1))
}

func TestComputeWaitShrinksWithQueueDepth(t *testing.T) {
	lightlyLoaded := computeWait(40, 1)
	heavilyLoaded := computeWait(40, 20)
	assert.Greater(t, lightlyLoaded, heavilyLoaded,
		"a deep dispatcher queue must get shorter mailbox waits")
}
