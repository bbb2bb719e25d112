package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := NewFake(epoch)
	var fired []string

	c.AfterFunc(300*time.Millisecond, func() { fired = append(fired, "late") })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "early") })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "early-second") })

	c.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"early", "early-second"}, fired)
	assert.Equal(t, epoch.Add(200*time.Millisecond), c.Now())
	assert.Equal(t, 1, c.Pending())

	c.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"early", "early-second", "late"}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeStop(t *testing.T) {
	c := NewFake(epoch)
	fired := false

	timer := c.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeRescheduleInsideCallback(t *testing.T) {
	c := NewFake(epoch)
	ticks := 0

	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(200*time.Millisecond, tick)
	}
	c.AfterFunc(200*time.Millisecond, tick)

	c.Advance(time.Second)
	assert.Equal(t, 5, ticks)
	assert.Equal(t, 1, c.Pending())
}

func TestFakeNowDuringCallback(t *testing.T) {
	c := NewFake(epoch)
	var seen time.Time

	c.AfterFunc(250*time.Millisecond, func() { seen = c.Now() })
	c.Advance(time.Second)

	assert.Equal(t, epoch.Add(250*time.Millisecond), seen)
}

func TestRealClockAfterFunc(t *testing.T) {
	done := make(chan struct{})
	New().AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
