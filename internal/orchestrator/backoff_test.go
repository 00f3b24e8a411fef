package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBookDelaySchedule(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 2*time.Second, p.BookDelay(1))
	assert.Equal(t, 4*time.Second, p.BookDelay(2))
	assert.Equal(t, 5*time.Second, p.BookDelay(3))
	assert.Equal(t, 5*time.Second, p.BookDelay(10))
	assert.Equal(t, 2*time.Second, p.BookDelay(0))
}

func TestWithDefaults(t *testing.T) {
	p := Policy{BookAttempts: 5}.withDefaults()
	assert.Equal(t, 5, p.BookAttempts)
	assert.Equal(t, 3, p.CleanupAttempts)
	assert.Equal(t, 2*time.Second, p.BookBase)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable("Due to High Demand we cannot book"))
	assert.True(t, IsRetryable("all seats are filled"))
	assert.False(t, IsRetryable("ride in wrong state"))
	assert.False(t, IsRetryable(""))
}
