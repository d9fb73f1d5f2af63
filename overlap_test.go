package bufcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveOverlapsNoOverlapReturnsRequestedSpan(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	res := c.resolveOverlaps(0x1000, 256)
	require.Equal(t, uint64(0x1000), res.begin)
	require.Equal(t, uint64(0x1100), res.end)
	require.Empty(t, res.absorbedIds)
}

func TestResolveOverlapsAbsorbsResidentBufferInSamePage(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	first := c.FindBuffer(0x1000, 256)

	res := c.resolveOverlaps(0x1000, 4096)
	require.Contains(t, res.absorbedIds, first)
	require.Equal(t, uint64(0x1000), res.begin)
	require.Equal(t, uint64(0x1000+4096), res.end)
}

func TestResolveOverlapsGrowsSpanToCoverAbsorbedBuffer(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	// A buffer whose range starts before the new request but shares a page.
	c.FindBuffer(0x1000, 64)

	res := c.resolveOverlaps(0x1020, 64)
	require.Equal(t, uint64(0x1000), res.begin)
	require.Equal(t, uint64(0x1020+64), res.end)
}

func TestResolveOverlapsStreamLeapExtendsEndOnceThresholdCrossed(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})

	// Repeatedly grow a buffer within the same page: each absorption bumps
	// the surviving buffer's stream score by one (joinOverlap's
	// accumulateStream), so enough repeats push it past
	// StreamLeapThreshold and the next resolve should extend the span by
	// StreamLeapExtraPages worth of bytes rather than just the request.
	addr := uint64(0x1000)
	var lastSize int
	for i := 0; i < StreamLeapThreshold+4; i++ {
		id := c.FindBuffer(addr, 16)
		addr += 16
		lastSize = c.Buffer(id).SizeBytes()
	}

	require.Greater(t, lastSize, StreamLeapExtraPages*PageSize/2,
		"stream leap should have inflated the buffer well beyond the naive linear growth")
}
