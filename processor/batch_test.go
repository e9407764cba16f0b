package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xapiens/rvpf/datetime"
)

func TestBatchReadyOnMaxSize(t *testing.T) {
	b := NewBatch(2, 0, datetime.SystemClock{})
	assert.False(t, b.Ready())
	b.Add(ResultValue{})
	assert.False(t, b.Ready())
	b.Add(ResultValue{})
	assert.True(t, b.Ready())
}

func TestBatchReadyOnMaxWait(t *testing.T) {
	clock := datetime.NewFakeClock(0)
	b := NewBatch(100, 10*time.Second, clock)

	b.Add(ResultValue{})
	assert.False(t, b.Ready())

	clock.Advance(11 * datetime.Second)
	assert.True(t, b.Ready())
}

func TestBatchEmptyIsNeverReady(t *testing.T) {
	b := NewBatch(1, time.Second, datetime.SystemClock{})
	assert.False(t, b.Ready())
}

func TestBatchResetClearsPendingAndTimer(t *testing.T) {
	clock := datetime.NewFakeClock(0)
	b := NewBatch(1, 0, clock)
	b.Add(ResultValue{})
	assert.True(t, b.Ready())

	b.Reset()
	assert.False(t, b.Ready())
	assert.Empty(t, b.Pending)

	clock.Advance(datetime.Hour)
	b.Add(ResultValue{})
	assert.True(t, b.Ready())
}
