package perfmeter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpeedZeroWithNoSamples(t *testing.T) {
	m := New(30 * time.Second)
	assert.Equal(t, 0.0, m.Speed())
}

func TestSpeedAveragesOverWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	m := New(10 * time.Second)
	m.now = func() time.Time { return clock }

	m.Add(10)
	clock = clock.Add(5 * time.Second)
	m.Add(10)

	// 20 records over a 5-second observed span -> 4/s.
	assert.InDelta(t, 4.0, m.Speed(), 0.001)
}

func TestSpeedEvictsSamplesOutsideWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	m := New(10 * time.Second)
	m.now = func() time.Time { return clock }

	m.Add(100)
	clock = clock.Add(20 * time.Second)
	m.Add(1)

	assert.Equal(t, 1.0, m.Speed())
}

func TestSpeedHandlesSameInstantSamples(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New(10 * time.Second)
	m.now = func() time.Time { return base }

	m.Add(5)
	m.Add(7)

	assert.Equal(t, 12.0, m.Speed())
}
