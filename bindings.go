package bufcache

// Fixed binding array widths, protocol-dictated per base spec §3.
const (
	NumVertexBuffers            = 32
	NumTransformFeedbackBuffers = 4
	NumGraphicsUniformBuffers   = 18
	NumComputeUniformBuffers    = 8
	NumStorageBuffers           = 16
	NumStages                   = 5
)

// Binding is the triple (cpuAddr, size, bufferId). BufferID is resolved
// lazily by the update pass; BufferID == NullBufferID means "unresolved or
// intentionally null".
type Binding struct {
	CPUAddr  uint64
	Size     int
	BufferID BufferId
}

// IsNull reports whether the binding currently resolves to the null
// buffer.
func (b Binding) IsNull() bool {
	return b.BufferID == NullBufferID
}

// IndexBinding extends Binding with the index format and the dirty-flag
// quirk tracking described in base spec §4.4 and §9: some titles mutate the
// index count without marking the index buffer dirty, so the update pass
// also compares against a cached last-seen count.
type IndexBinding struct {
	Binding
	Format        IndexFormat
	Dirty         bool
	lastCount     int
	lastCountInit bool
}

// BindingState holds every graphics-engine binding array the update and
// bind passes resolve against.
type BindingState struct {
	Index IndexBinding

	Vertex         [NumVertexBuffers]Binding
	VertexDirty    bool
	VertexSubDirty [NumVertexBuffers]bool
	VertexEnabled  [NumVertexBuffers]bool

	TransformFeedback        [NumTransformFeedbackBuffers]Binding
	TransformFeedbackEnabled bool

	Uniform                [NumStages][NumGraphicsUniformBuffers]Binding
	UniformEnabled         [NumStages][NumGraphicsUniformBuffers]bool
	UniformFastBound       [NumStages][NumGraphicsUniformBuffers]bool
	UniformPersistentDirty [NumStages][NumGraphicsUniformBuffers]bool

	Storage        [NumStages][NumStorageBuffers]Binding
	StorageEnabled [NumStages][NumStorageBuffers]bool
	StorageWritten [NumStages][NumStorageBuffers]bool
}

// ComputeBindingState mirrors BindingState for the compute launch
// descriptor's const-buffer and storage-buffer slots.
type ComputeBindingState struct {
	Uniform        [NumComputeUniformBuffers]Binding
	UniformEnabled [NumComputeUniformBuffers]bool

	Storage        [NumStorageBuffers]Binding
	StorageEnabled [NumStorageBuffers]bool
	StorageWritten [NumStorageBuffers]bool
}

// BindGraphicsUniformBuffer records a graphics uniform buffer slot,
// captured at cbuf-bind time; gpuAddr is translated through GPUMemory
// immediately, matching the original engine's eager-translate behavior, and
// the update pass resolves the CPU range to a BufferId later via
// Cache.FindBuffer. This is the "previously-recorded" binding base spec
// §4.4 refers to.
func (c *Cache) BindGraphicsUniformBuffer(stage, index int, gpuAddr uint64, size int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	cpuAddr, ok := c.gpuMemory.GPUToCPUAddress(gpuAddr)
	if !ok {
		c.disableGraphicsUniformBufferLocked(stage, index)
		return
	}
	c.graphics.Uniform[stage][index].CPUAddr = cpuAddr
	c.graphics.Uniform[stage][index].Size = size
	c.graphics.Uniform[stage][index].BufferID = NullBufferID
	c.graphics.UniformEnabled[stage][index] = true
}

// DisableGraphicsUniformBuffer clears a graphics uniform buffer slot back
// to the null binding.
func (c *Cache) DisableGraphicsUniformBuffer(stage, index int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.disableGraphicsUniformBufferLocked(stage, index)
}

func (c *Cache) disableGraphicsUniformBufferLocked(stage, index int) {
	c.graphics.Uniform[stage][index] = Binding{}
	c.graphics.UniformEnabled[stage][index] = false
}

// SetEnabledUniformBuffers records which graphics uniform buffer slots are
// enabled for stage. When persistent uniform binding is supported and the
// enabled mask itself changed, every slot is marked for a sticky rebind —
// the host needs to re-observe a slot that just became enabled even if its
// address hasn't changed since it last was.
func (c *Cache) SetEnabledUniformBuffers(stage int, enabled uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var prevMask uint32
	for i := 0; i < NumGraphicsUniformBuffers; i++ {
		if c.graphics.UniformEnabled[stage][i] {
			prevMask |= 1 << uint(i)
		}
	}
	if c.caps.HasPersistentUniformBufferBindings && prevMask != enabled {
		for i := range c.graphics.UniformPersistentDirty[stage] {
			c.graphics.UniformPersistentDirty[stage][i] = true
		}
	}
	for i := 0; i < NumGraphicsUniformBuffers; i++ {
		c.graphics.UniformEnabled[stage][i] = enabled&(1<<uint(i)) != 0
	}
}

// UnbindGraphicsStorageBuffers clears every storage buffer slot's enabled
// and written bits for stage.
func (c *Cache) UnbindGraphicsStorageBuffers(stage int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for i := range c.graphics.StorageEnabled[stage] {
		c.graphics.StorageEnabled[stage][i] = false
		c.graphics.StorageWritten[stage][i] = false
	}
}

// BindGraphicsStorageBuffer resolves and records a graphics storage buffer
// slot: descriptorGPUAddr names the GPU address of the bound constant
// buffer word pair the {address, size} descriptor is packed into. The
// descriptor is dereferenced immediately, eagerly, exactly once per bind —
// the update pass that follows only re-resolves the BufferId from the
// CPU range captured here, it never re-reads the descriptor words.
func (c *Cache) BindGraphicsStorageBuffer(stage, ssboIndex int, descriptorGPUAddr uint64, isWritten bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.graphics.StorageEnabled[stage][ssboIndex] = true
	c.graphics.StorageWritten[stage][ssboIndex] = isWritten
	c.graphics.Storage[stage][ssboIndex] = c.resolveStorageBufferBinding(descriptorGPUAddr)
}

// UnbindComputeStorageBuffers clears every compute storage buffer slot's
// enabled and written bits.
func (c *Cache) UnbindComputeStorageBuffers() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for i := range c.compute.StorageEnabled {
		c.compute.StorageEnabled[i] = false
		c.compute.StorageWritten[i] = false
	}
}

// BindComputeStorageBuffer mirrors BindGraphicsStorageBuffer for the
// compute launch descriptor's storage buffer slots.
func (c *Cache) BindComputeStorageBuffer(ssboIndex int, descriptorGPUAddr uint64, isWritten bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.compute.StorageEnabled[ssboIndex] = true
	c.compute.StorageWritten[ssboIndex] = isWritten
	c.compute.Storage[ssboIndex] = c.resolveStorageBufferBinding(descriptorGPUAddr)
}

// scrubBindings implements base spec invariant 5 and §4.3's deletion
// behavior: every binding referencing id reverts to the null buffer, and
// (regardless of whether id was actually bound anywhere) persistent
// uniform tracking, the index dirty flag and every vertex dirty flag are
// forced so the surrounding update loop re-resolves everything.
func (c *Cache) scrubBindings(id BufferId) {
	g := &c.graphics
	cp := &c.compute

	if g.Index.BufferID == id {
		g.Index.BufferID = NullBufferID
	}
	for i := range g.Vertex {
		if g.Vertex[i].BufferID == id {
			g.Vertex[i].BufferID = NullBufferID
		}
	}
	for i := range g.TransformFeedback {
		if g.TransformFeedback[i].BufferID == id {
			g.TransformFeedback[i].BufferID = NullBufferID
		}
	}
	for s := 0; s < NumStages; s++ {
		for i := range g.Uniform[s] {
			if g.Uniform[s][i].BufferID == id {
				g.Uniform[s][i].BufferID = NullBufferID
			}
		}
		for i := range g.Storage[s] {
			if g.Storage[s][i].BufferID == id {
				g.Storage[s][i].BufferID = NullBufferID
			}
		}
	}
	for i := range cp.Uniform {
		if cp.Uniform[i].BufferID == id {
			cp.Uniform[i].BufferID = NullBufferID
		}
	}
	for i := range cp.Storage {
		if cp.Storage[i].BufferID == id {
			cp.Storage[i].BufferID = NullBufferID
		}
	}

	g.Index.Dirty = true
	g.VertexDirty = true
	for i := range g.VertexSubDirty {
		g.VertexSubDirty[i] = true
	}
	for s := 0; s < NumStages; s++ {
		for i := range g.UniformPersistentDirty[s] {
			g.UniformPersistentDirty[s][i] = true
		}
	}
}
