package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupWithinTTL(t *testing.T) {
	d := NewDedup(time.Hour)

	assert.False(t, d.IsDuplicate("sma|NIFTY|BUY"), "first sighting passes")
	assert.True(t, d.IsDuplicate("sma|NIFTY|BUY"))
	assert.False(t, d.IsDuplicate("sma|NIFTY|SELL"), "different side is a different key")
}

func TestDedupExpires(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)

	assert.False(t, d.IsDuplicate("k"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, d.IsDuplicate("k"), "entry aged out")
}

func TestDedupCleanup(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)
	d.IsDuplicate("a")
	d.IsDuplicate("b")
	time.Sleep(20 * time.Millisecond)
	d.IsDuplicate("c")

	d.Cleanup()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.NotContains(t, d.seen, "a")
	assert.NotContains(t, d.seen, "b")
	assert.Contains(t, d.seen, "c")
}
