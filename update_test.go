package bufcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateIndexBufferResolvesOnDirtyFlag(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	engine := &fakeGraphicsEngine{
		index: IndexArrayState{GPUStart: 0x1000, GPUEnd: 0x1100, Count: 64, Format: IndexFormatUint32, Dirty: true},
	}

	c.UpdateGraphicsBuffers(true, engine)

	require.False(t, c.graphics.Index.BufferID.IsNull())
	require.Equal(t, uint64(0x1000), c.graphics.Index.CPUAddr)
}

func TestUpdateIndexBufferSkipsResolveWhenNotDirtyAndCountUnchanged(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	engine := &fakeGraphicsEngine{
		index: IndexArrayState{GPUStart: 0x1000, GPUEnd: 0x1100, Count: 64, Format: IndexFormatUint32, Dirty: true},
	}
	c.UpdateGraphicsBuffers(true, engine)
	first := c.graphics.Index.BufferID

	engine.index.Dirty = false
	c.UpdateGraphicsBuffers(true, engine)

	require.Equal(t, first, c.graphics.Index.BufferID)
}

func TestUpdateIndexBufferResolvesOnCountChangeEvenWithoutDirtyFlag(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	engine := &fakeGraphicsEngine{
		index: IndexArrayState{GPUStart: 0x1000, GPUEnd: 0x1100, Count: 64, Format: IndexFormatUint32, Dirty: true},
	}
	c.UpdateGraphicsBuffers(true, engine)

	engine.index.Dirty = false
	engine.index.Count = 32
	c.UpdateGraphicsBuffers(true, engine)

	// The binding was re-resolved even though the engine never raised its
	// own dirty flag — only the draw count changed, so the bound size
	// shrinks from the whole 0x100-byte range to 32 four-byte indices.
	require.Equal(t, 32*IndexFormatUint32.ElementSize(), c.graphics.Index.Size)
}

func TestUpdateVertexBuffersSkipsWhenGroupNotDirty(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	engine := &fakeGraphicsEngine{groupDirty: false}

	c.UpdateGraphicsBuffers(false, engine)

	require.False(t, c.graphics.VertexDirty)
}

func TestUpdateVertexBufferResolvesEnabledSlot(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	engine := &fakeGraphicsEngine{groupDirty: true}
	engine.indexDirty[0] = true
	engine.vertex[0] = VertexArrayState{GPUStart: 0x1000, Limit: 0x10FF, Enabled: true}

	c.UpdateGraphicsBuffers(false, engine)

	require.True(t, c.graphics.VertexEnabled[0])
	require.False(t, c.graphics.Vertex[0].BufferID.IsNull())
	require.True(t, c.graphics.VertexSubDirty[0])
}

func TestUpdateTransformFeedbackBuffersResolvesAndMarksWritten(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	engine := &fakeGraphicsEngine{tfbEnabled: true}
	engine.tfb[0] = TransformFeedbackBindingState{GPUAddr: 0x3000, Size: 128, Enabled: true}

	c.UpdateGraphicsBuffers(false, engine)

	require.True(t, c.graphics.TransformFeedbackEnabled)
	id := c.graphics.TransformFeedback[0].BufferID
	require.False(t, id.IsNull())
	require.True(t, c.Buffer(id).IsRegionGPUModified(0x3000, 128))
}

func TestUpdateComputeUniformBuffersPullsFreshEveryPass(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})
	launch := &fakeComputeLaunch{}
	launch.enabled[0] = true
	launch.addr[0] = 0x1000
	launch.size[0] = 64

	c.UpdateComputeBuffers(launch)
	require.True(t, c.compute.UniformEnabled[0])
	require.Equal(t, uint64(0x1000), c.compute.Uniform[0].CPUAddr)

	launch.addr[0] = 0x2000
	c.UpdateComputeBuffers(launch)
	require.Equal(t, uint64(0x2000), c.compute.Uniform[0].CPUAddr)
}

func TestUpdateComputeStorageBufferKeepsBindTimeRangeAcrossPasses(t *testing.T) {
	c, _, mem := newTestCache(Capabilities{})
	mem.WriteU64(0x7000, 0x4000)
	mem.WriteU32(0x7008, 64)
	c.BindComputeStorageBuffer(0, 0x7000, true)

	launch := &fakeComputeLaunch{}
	c.UpdateComputeBuffers(launch)

	require.Equal(t, uint64(0x4000), c.compute.Storage[0].CPUAddr)
	require.True(t, c.Buffer(c.compute.Storage[0].BufferID).IsRegionGPUModified(0x4000, 64))
}

func TestUpdateGraphicsBuffersRetriesOnMidPassDeletion(t *testing.T) {
	c, _, _ := newTestCache(Capabilities{})

	// Seed a vertex binding against a small resident buffer.
	small := c.FindBuffer(0x1000, 16)
	c.graphics.Vertex[0].BufferID = small
	c.graphics.VertexEnabled[0] = true

	engine := &fakeGraphicsEngine{groupDirty: true}
	engine.indexDirty[0] = true
	engine.indexDirty[1] = true
	// Slot 0 re-resolves to the same small range; slot 1 resolves to a much
	// larger overlapping range that absorbs (deletes) the slot-0 buffer
	// mid-pass, forcing the fixpoint loop to retry and re-resolve slot 0
	// against the surviving, larger buffer.
	engine.vertex[0] = VertexArrayState{GPUStart: 0x1000, Limit: 0x100F, Enabled: true}
	engine.vertex[1] = VertexArrayState{GPUStart: 0x1000, Limit: 0x1FFF, Enabled: true}

	c.UpdateGraphicsBuffers(false, engine)

	require.Equal(t, c.graphics.Vertex[0].BufferID, c.graphics.Vertex[1].BufferID)
	require.False(t, c.graphics.Vertex[0].BufferID.IsNull())
}
