package bufcache

// UpdateGraphicsBuffers re-resolves every graphics binding array against
// the current engine register state, retrying the whole pass whenever a
// buffer got deleted mid-pass (an overlap absorption triggered while
// resolving a later slot can delete a buffer a binding earlier in this same
// pass had already resolved against).
func (c *Cache) UpdateGraphicsBuffers(isIndexed bool, engine GraphicsEngineState) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for {
		c.hasDeletedBuffers = false
		c.doUpdateGraphicsBuffers(isIndexed, engine)
		if !c.hasDeletedBuffers {
			return
		}
	}
}

// UpdateComputeBuffers mirrors UpdateGraphicsBuffers for the compute launch
// descriptor's const-buffer and storage-buffer slots.
func (c *Cache) UpdateComputeBuffers(launch ComputeLaunchDescriptor) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for {
		c.hasDeletedBuffers = false
		c.updateComputeUniformBuffers(launch)
		c.updateComputeStorageBuffers()
		if !c.hasDeletedBuffers {
			return
		}
	}
}

func (c *Cache) doUpdateGraphicsBuffers(isIndexed bool, engine GraphicsEngineState) {
	if isIndexed {
		c.updateIndexBuffer(engine)
	}
	c.updateVertexBuffers(engine)
	c.updateTransformFeedbackBuffers(engine)
	for stage := 0; stage < NumStages; stage++ {
		c.updateUniformBuffers(stage)
		c.updateStorageBuffers(stage)
	}
}

// updateIndexBuffer re-resolves the index binding. Some titles mutate the
// index count without raising the engine's index-buffer dirty flag, so a
// count change alone also triggers a re-resolve.
func (c *Cache) updateIndexBuffer(engine GraphicsEngineState) {
	arr := engine.IndexArray()
	idx := &c.graphics.Index
	if !arr.Dirty && idx.lastCountInit && idx.lastCount == arr.Count {
		return
	}
	idx.lastCount = arr.Count
	idx.lastCountInit = true

	cpuAddr, ok := c.gpuMemory.GPUToCPUAddress(arr.GPUStart)
	addressSize := int(arr.GPUEnd - arr.GPUStart)
	drawSize := arr.Count * arr.Format.ElementSize()
	size := addressSize
	if drawSize < size {
		size = drawSize
	}
	if size <= 0 || !ok {
		idx.Binding = Binding{}
		idx.Format = arr.Format
		idx.Dirty = true
		return
	}
	idx.Binding = Binding{
		CPUAddr:  cpuAddr,
		Size:     size,
		BufferID: c.findBufferLocked(cpuAddr, size),
	}
	idx.Format = arr.Format
	idx.Dirty = true
}

func (c *Cache) updateVertexBuffers(engine GraphicsEngineState) {
	if !engine.VertexArrayGroupDirty() {
		return
	}
	for index := 0; index < NumVertexBuffers; index++ {
		c.updateVertexBuffer(index, engine)
	}
}

func (c *Cache) updateVertexBuffer(index int, engine GraphicsEngineState) {
	if !engine.VertexArrayIndexDirty(index) {
		return
	}
	arr := engine.VertexArray(index)
	cpuAddr, ok := c.gpuMemory.GPUToCPUAddress(arr.GPUStart)
	size := int(arr.Limit - arr.GPUStart + 1)
	if !arr.Enabled || size <= 0 || !ok {
		c.graphics.Vertex[index] = Binding{}
		c.graphics.VertexEnabled[index] = false
		c.graphics.VertexDirty = true
		c.graphics.VertexSubDirty[index] = true
		return
	}
	c.graphics.Vertex[index] = Binding{
		CPUAddr:  cpuAddr,
		Size:     size,
		BufferID: c.findBufferLocked(cpuAddr, size),
	}
	c.graphics.VertexEnabled[index] = true
	c.graphics.VertexDirty = true
	c.graphics.VertexSubDirty[index] = true
}

func (c *Cache) updateUniformBuffers(stage int) {
	for index := 0; index < NumGraphicsUniformBuffers; index++ {
		if !c.graphics.UniformEnabled[stage][index] {
			continue
		}
		binding := &c.graphics.Uniform[stage][index]
		if !binding.BufferID.IsNull() {
			continue
		}
		if c.caps.HasPersistentUniformBufferBindings {
			c.graphics.UniformPersistentDirty[stage][index] = true
		}
		binding.BufferID = c.findBufferLocked(binding.CPUAddr, binding.Size)
	}
}

// updateStorageBuffers re-resolves every enabled storage buffer slot for
// stage. The CPU range was already captured by BindGraphicsStorageBuffer at
// bind time; only the BufferId needs refreshing here, since overlap
// resolution earlier in this same pass may have replaced it.
func (c *Cache) updateStorageBuffers(stage int) {
	for index := 0; index < NumStorageBuffers; index++ {
		if !c.graphics.StorageEnabled[stage][index] {
			continue
		}
		binding := &c.graphics.Storage[stage][index]
		binding.BufferID = c.findBufferLocked(binding.CPUAddr, binding.Size)
		if c.graphics.StorageWritten[stage][index] {
			c.markWrittenBuffer(binding.BufferID, binding.CPUAddr, binding.Size)
		}
	}
}

func (c *Cache) updateTransformFeedbackBuffers(engine GraphicsEngineState) {
	if !engine.TransformFeedbackEnabled() {
		return
	}
	c.graphics.TransformFeedbackEnabled = true
	for index := 0; index < NumTransformFeedbackBuffers; index++ {
		tfb := engine.TransformFeedbackBinding(index)
		cpuAddr, ok := c.gpuMemory.GPUToCPUAddress(tfb.GPUAddr)
		if !tfb.Enabled || tfb.Size <= 0 || !ok {
			c.graphics.TransformFeedback[index] = Binding{}
			continue
		}
		id := c.findBufferLocked(cpuAddr, tfb.Size)
		c.graphics.TransformFeedback[index] = Binding{
			CPUAddr:  cpuAddr,
			Size:     tfb.Size,
			BufferID: id,
		}
		c.markWrittenBuffer(id, cpuAddr, tfb.Size)
	}
}

func (c *Cache) updateComputeUniformBuffers(launch ComputeLaunchDescriptor) {
	for index := 0; index < NumComputeUniformBuffers; index++ {
		binding := Binding{}
		if launch.UniformBufferEnabled(index) {
			gpuAddr, size := launch.UniformBuffer(index)
			if cpuAddr, ok := c.gpuMemory.GPUToCPUAddress(gpuAddr); ok {
				binding.CPUAddr = cpuAddr
				binding.Size = size
			}
		}
		binding.BufferID = c.findBufferLocked(binding.CPUAddr, binding.Size)
		c.compute.Uniform[index] = binding
		c.compute.UniformEnabled[index] = launch.UniformBufferEnabled(index)
	}
}

// updateComputeStorageBuffers mirrors updateStorageBuffers: the CPU range
// was captured by BindComputeStorageBuffer at bind time, only the BufferId
// is refreshed here.
func (c *Cache) updateComputeStorageBuffers() {
	for index := 0; index < NumStorageBuffers; index++ {
		if !c.compute.StorageEnabled[index] {
			continue
		}
		binding := &c.compute.Storage[index]
		binding.BufferID = c.findBufferLocked(binding.CPUAddr, binding.Size)
		if c.compute.StorageWritten[index] {
			c.markWrittenBuffer(binding.BufferID, binding.CPUAddr, binding.Size)
		}
	}
}

// resolveStorageBufferBinding dereferences a storage buffer descriptor
// packed into a bound constant buffer: a GPU virtual address at
// descriptorAddr, and a byte size at descriptorAddr+8. Titles are known to
// index storage buffers out of the bounds their shader declares (Astral
// Chain among them); rather than binding the whole remaining guest mapping,
// the host binding is padded by a small fixed margin and clamped against
// how much of the mapping actually remains.
func (c *Cache) resolveStorageBufferBinding(descriptorAddr uint64) Binding {
	gpuAddr := c.gpuMemory.ReadU64(descriptorAddr)
	size := int(c.gpuMemory.ReadU32(descriptorAddr + 8))
	cpuAddr, ok := c.gpuMemory.GPUToCPUAddress(gpuAddr)
	if !ok || size == 0 {
		return Binding{}
	}
	bytesToMapEnd := c.gpuMemory.BytesToMapEnd(gpuAddr)
	padded := size + StorageBufferOverBindBytes
	if padded > bytesToMapEnd {
		padded = bytesToMapEnd
	}
	return Binding{
		CPUAddr:  cpuAddr,
		Size:     padded,
		BufferID: c.findBufferLocked(cpuAddr, padded),
	}
}

// markWrittenBuffer records that the host wrote id's [cpuAddr, cpuAddr+size)
// range, and — under high GPU accuracy with asynchronous GPU emulation — also
// schedules that range for a deferred CPU-side flush once it isn't already
// pending.
func (c *Cache) markWrittenBuffer(id BufferId, cpuAddr uint64, size int) {
	buf := c.slots.get(id)
	if buf == nil {
		return
	}
	buf.MarkRegionAsGPUModified(cpuAddr, size)

	if !c.settings.GPUAccuracyHigh || !c.settings.asyncDownloadsEnabled() {
		return
	}
	c.uncommittedDownloads.add(id)
}
