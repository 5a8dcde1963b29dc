package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowIsPerKey(t *testing.T) {
	l := New(0.001, 2, time.Minute)

	assert.True(t, l.Allow("EURUSD"))
	assert.True(t, l.Allow("EURUSD"))
	assert.False(t, l.Allow("EURUSD"))

	assert.True(t, l.Allow("GBPUSD"))
	assert.Equal(t, 2, l.Len())
}

func TestIdleKeysAreDropped(t *testing.T) {
	l := New(1, 1, time.Minute)
	start := time.Now()
	l.get("a", start)
	l.get("b", start.Add(2*time.Minute))
	assert.Equal(t, 1, l.Len())
}
