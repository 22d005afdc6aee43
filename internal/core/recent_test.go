package core

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentSetExpires(t *testing.T) {
	clk := clock.NewMock()
	set := newRecentSet(clk, DefaultRecentTTL)
	defer set.Close()

	assert.True(t, set.Add("m1"))
	assert.False(t, set.Add("m1"))
	assert.True(t, set.Contains("m1"))

	clk.Add(59 * time.Second)
	assert.True(t, set.Contains("m1"))

	clk.Add(2 * time.Second)
	require.Eventually(t, func() bool { return !set.Contains("m1") }, time.Second, time.Millisecond)
	assert.True(t, set.Add("m1"))
}

func TestRecentSetReAddRestartsExpiry(t *testing.T) {
	clk := clock.NewMock()
	set := newRecentSet(clk, time.Minute)
	defer set.Close()

	set.Add("m1")
	clk.Add(40 * time.Second)
	set.Add("m1")
	clk.Add(40 * time.Second)
	assert.True(t, set.Contains("m1"))

	clk.Add(30 * time.Second)
	require.Eventually(t, func() bool { return set.Len() == 0 }, time.Second, time.Millisecond)
}

func TestRecentSetClearKeepsLaterEntries(t *testing.T) {
	clk := clock.NewMock()
	set := newRecentSet(clk, time.Minute)
	defer set.Close()

	set.Add("old")
	set.Add("shared")
	clk.Add(30 * time.Second)

	set.Clear()
	assert.False(t, set.Contains("old"))
	assert.Zero(t, set.Len())

	assert.True(t, set.Add("shared"))
	assert.True(t, set.Add("new"))

	// Past the expiry of everything inserted before the clear.
	clk.Add(40 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, set.Contains("shared"))
	assert.True(t, set.Contains("new"))

	clk.Add(30 * time.Second)
	require.Eventually(t, func() bool { return set.Len() == 0 }, time.Second, time.Millisecond)
}

func TestRecentSetClosed(t *testing.T) {
	set := newRecentSet(clock.NewMock(), time.Minute)
	set.Add("m1")
	set.Close()

	assert.Zero(t, set.Len())
	assert.True(t, set.Add("m1"))
	assert.False(t, set.Contains("m1"))
}

func TestRecentSetIgnoresEmptyID(t *testing.T) {
	set := newRecentSet(clock.NewMock(), time.Minute)
	defer set.Close()

	assert.True(t, set.Add(""))
	assert.True(t, set.Add(""))
	assert.Zero(t, set.Len())
}
