package stream

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleTimer_FiresOnceWhenEmpty(t *testing.T) {
	var size atomic.Int32
	var fired atomic.Int32
	timer := NewIdleTimer(50*time.Millisecond, func() int { return int(size.Load()) }, nil)
	timer.SetCallback(func() { fired.Add(1) })

	assert.True(t, timer.Arm())
	assert.False(t, timer.Arm(), "a second arm while pending must not start another timer")

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, timer.Pending())
}

func TestIdleTimer_ReconnectSuppressesFire(t *testing.T) {
	var size atomic.Int32
	var fired atomic.Int32
	timer := NewIdleTimer(50*time.Millisecond, func() int { return int(size.Load()) }, nil)
	timer.SetCallback(func() { fired.Add(1) })

	timer.Arm()
	size.Store(1)

	require.Eventually(t, func() bool { return !timer.Pending() }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestIdleTimer_RearmAfterFire(t *testing.T) {
	var fired atomic.Int32
	timer := NewIdleTimer(20*time.Millisecond, func() int { return 0 }, nil)
	timer.SetCallback(func() { fired.Add(1) })

	timer.Arm()
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, timer.Arm())
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestIdleTimer_StopSuppressesFire(t *testing.T) {
	var fired atomic.Int32
	timer := NewIdleTimer(30*time.Millisecond, func() int { return 0 }, nil)
	timer.SetCallback(func() { fired.Add(1) })

	timer.Arm()
	timer.Stop()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, timer.Arm(), "a stopped timer must not arm")
}
