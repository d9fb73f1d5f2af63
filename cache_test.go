package bufcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUsesDisabledLoggerWhenNil(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	require.NotNil(t, c.logger)
}

func TestBufferReturnsNilForUnknownID(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	require.Nil(t, c.Buffer(BufferId(999)))
}

func TestBufferReturnsRegisteredBuffer(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	id := c.FindBuffer(0x1000, 256)
	require.False(t, id.IsNull())
	require.NotNil(t, c.Buffer(id))
}

func TestTickFrameReleasesBufferAfterRingDepth(t *testing.T) {
	c, rt, _ := newTestCache(Capabilities{})
	id := c.FindBuffer(0x1000, 256)
	buf := c.Buffer(id)
	host := buf.Host()

	c.DeleteBuffer(id)
	require.Contains(t, rt.memory, host.(fakeHandle))

	for i := 0; i < DestructionRingDepth; i++ {
		c.TickFrame()
	}

	require.NotContains(t, rt.memory, host.(fakeHandle))
	require.Nil(t, c.Buffer(id))
}

func TestTickFrameKeepsBufferAliveUntilRingDepthElapses(t *testing.T) {
	c, rt, _ := newTestCache(Capabilities{})
	id := c.FindBuffer(0x1000, 256)
	host := c.Buffer(id).Host()

	c.DeleteBuffer(id)
	for i := 0; i < DestructionRingDepth-1; i++ {
		c.TickFrame()
	}

	require.Contains(t, rt.memory, host.(fakeHandle))
}

func TestDebugStatsReflectsOccupancy(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	c.FindBuffer(0x1000, 256)
	c.FindBuffer(0x100000, 512)

	stats := c.DebugStats()
	require.Equal(t, 2, stats.RegisteredBuffers)
	require.Greater(t, stats.DirectoryPages, 0)

	data, err := c.DumpDebugJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), "RegisteredBuffers")
}
