package bufcache

// BindHostGeometryBuffers issues every host bind call for the index and
// vertex buffers, synchronizing each buffer's pending CPU writes to the
// host first.
func (c *Cache) BindHostGeometryBuffers(isIndexed bool, topology Topology) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if isIndexed {
		c.bindHostIndexBuffer(topology)
	} else if !c.caps.HasFullIndexAndPrimitiveSupport && topology.IsQuad() {
		c.bindHostQuadArrayIndexBuffer(topology)
	}
	c.bindHostVertexBuffers()
}

func (c *Cache) bindHostIndexBuffer(topology Topology) {
	idx := &c.graphics.Index
	buf := c.slots.get(idx.BufferID)
	offset := buf.Offset(idx.CPUAddr)
	c.synchronizeBuffer(buf, idx.CPUAddr, idx.Size)

	if err := c.runtime.BindIndexBuffer(buf.Host(), offset, idx.Size, idx.Format); err != nil {
		c.logger.Error("BindHostGeometryBuffers failed to bind index buffer", "err", err)
	}
}

// bindHostQuadArrayIndexBuffer synthesizes a triangle index buffer for a
// quad topology on a host backend without native quad primitive support.
// This is the "original has a bind_quad_array_index_buffer path" case
// supplemented from the upstream implementation: quad_indices[i] walks
// vertices in the pattern 0,1,2, 0,2,3 per quad, entirely host-side and
// never touching guest memory, so the cache only has to request it.
func (c *Cache) bindHostQuadArrayIndexBuffer(topology Topology) {
	arr, _ := c.currentIndexArrayForQuad()
	if err := c.runtime.BindQuadArrayIndexBuffer(arr.firstVertex, arr.vertexCount); err != nil {
		c.logger.Error("BindHostGeometryBuffers failed to bind quad array index buffer", "err", err)
	}
}

type quadArrayRange struct {
	firstVertex int
	vertexCount int
}

// currentIndexArrayForQuad returns the quad vertex range last recorded by
// SetQuadArrayRange, and whether a non-zero range has been recorded.
func (c *Cache) currentIndexArrayForQuad() (quadArrayRange, bool) {
	return c.pendingQuadArray, c.pendingQuadArray != (quadArrayRange{})
}

// SetQuadArrayRange records the vertex range a subsequent
// BindHostGeometryBuffers call should synthesize a quad index buffer for.
// Callers set this immediately before issuing a non-indexed quad draw on a
// backend lacking native quad primitive support.
func (c *Cache) SetQuadArrayRange(firstVertex, vertexCount int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pendingQuadArray = quadArrayRange{firstVertex: firstVertex, vertexCount: vertexCount}
}

func (c *Cache) bindHostVertexBuffers() {
	for index := 0; index < NumVertexBuffers; index++ {
		binding := c.graphics.Vertex[index]
		buf := c.slots.get(binding.BufferID)
		c.synchronizeBuffer(buf, binding.CPUAddr, binding.Size)
		if !c.graphics.VertexSubDirty[index] {
			continue
		}
		c.graphics.VertexSubDirty[index] = false

		offset := buf.Offset(binding.CPUAddr)
		if err := c.runtime.BindVertexBuffer(index, buf.Host(), offset, binding.Size, c.vertexStride[index]); err != nil {
			c.logger.Error("BindHostGeometryBuffers failed to bind vertex buffer", "err", err, "index", index)
		}
	}
	c.graphics.VertexDirty = false
}

// SetVertexStride records the current stride of a vertex buffer slot,
// consulted by the next BindHostGeometryBuffers call.
func (c *Cache) SetVertexStride(index int, stride int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.vertexStride[index] = stride
}

// BindHostStageBuffers issues every host bind call for one shader stage's
// uniform and storage buffers.
func (c *Cache) BindHostStageBuffers(stage int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.bindHostGraphicsUniformBuffers(stage)
	c.bindHostGraphicsStorageBuffers(stage)
}

// BindHostTransformFeedbackBuffers issues every host bind call for the
// currently enabled transform feedback buffers.
func (c *Cache) BindHostTransformFeedbackBuffers() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.graphics.TransformFeedbackEnabled {
		return
	}
	for index := 0; index < NumTransformFeedbackBuffers; index++ {
		binding := c.graphics.TransformFeedback[index]
		buf := c.slots.get(binding.BufferID)
		c.synchronizeBuffer(buf, binding.CPUAddr, binding.Size)
		offset := buf.Offset(binding.CPUAddr)
		if err := c.runtime.BindTransformFeedbackBuffer(index, buf.Host(), offset, binding.Size); err != nil {
			c.logger.Error("BindHostTransformFeedbackBuffers failed", "err", err, "index", index)
		}
	}
}

func (c *Cache) bindHostGraphicsUniformBuffers(stage int) {
	dirty := ^uint32(0)
	if c.caps.HasPersistentUniformBufferBindings {
		dirty = 0
		for index := 0; index < NumGraphicsUniformBuffers; index++ {
			if c.graphics.UniformPersistentDirty[stage][index] {
				dirty |= 1 << uint(index)
			}
			c.graphics.UniformPersistentDirty[stage][index] = false
		}
	}

	bindingIndex := 0
	for index := 0; index < NumGraphicsUniformBuffers; index++ {
		if !c.graphics.UniformEnabled[stage][index] {
			continue
		}
		needsBind := dirty&(1<<uint(index)) != 0
		c.bindHostGraphicsUniformBuffer(stage, index, bindingIndex, needsBind)
		if c.caps.NeedsBindUniformIndex {
			bindingIndex++
		}
	}
}

func (c *Cache) bindHostGraphicsUniformBuffer(stage, index, bindingIndex int, needsBind bool) {
	binding := c.graphics.Uniform[stage][index]
	buf := c.slots.get(binding.BufferID)
	useFastBuffer := c.skipCacheEnabled && !binding.BufferID.IsNull() &&
		binding.Size <= c.skipCacheSize &&
		buf != nil && !buf.IsRegionGPUModified(binding.CPUAddr, binding.Size)

	if useFastBuffer {
		if c.caps.IsOpenGL && c.runtime.HasFastBufferSubData() {
			if !c.graphics.UniformFastBound[stage][bindingIndex] {
				offset := buf.Offset(binding.CPUAddr)
				if err := c.runtime.BindFastUniformBuffer(stage, bindingIndex, buf.Host(), offset, binding.Size); err != nil {
					c.logger.Error("bindHostGraphicsUniformBuffer fast bind failed", "err", err)
				}
				c.graphics.UniformFastBound[stage][bindingIndex] = true
			}
			data := make([]byte, binding.Size)
			c.cpuMemory.ReadBlockUnsafe(binding.CPUAddr, data)
			if err := c.runtime.PushFastUniformBuffer(stage, bindingIndex, data); err != nil {
				c.logger.Error("bindHostGraphicsUniformBuffer push failed", "err", err)
			}
			return
		}
		c.graphics.UniformFastBound[stage][bindingIndex] = true
		mapped, err := c.runtime.BindMappedUniformBuffer(stage, bindingIndex, binding.Size)
		if err != nil {
			c.logger.Error("bindHostGraphicsUniformBuffer mapped bind failed", "err", err)
			return
		}
		c.cpuMemory.ReadBlockUnsafe(binding.CPUAddr, mapped)
		return
	}

	syncedFromCache := c.synchronizeBuffer(buf, binding.CPUAddr, binding.Size)
	c.uniformCache.RecordCachedBind(syncedFromCache)

	if !needsBind && !c.graphics.UniformFastBound[stage][bindingIndex] {
		return
	}
	c.graphics.UniformFastBound[stage][bindingIndex] = false

	offset := buf.Offset(binding.CPUAddr)
	var err error
	if c.caps.NeedsBindUniformIndex {
		err = c.runtime.BindUniformBuffer(stage, bindingIndex, buf.Host(), offset, binding.Size)
	} else {
		err = c.runtime.BindUniformBuffer(stage, 0, buf.Host(), offset, binding.Size)
	}
	if err != nil {
		c.logger.Error("bindHostGraphicsUniformBuffer bind failed", "err", err)
	}
}

func (c *Cache) bindHostGraphicsStorageBuffers(stage int) {
	bindingIndex := 0
	for index := 0; index < NumStorageBuffers; index++ {
		if !c.graphics.StorageEnabled[stage][index] {
			continue
		}
		binding := c.graphics.Storage[stage][index]
		buf := c.slots.get(binding.BufferID)
		c.synchronizeBuffer(buf, binding.CPUAddr, binding.Size)
		offset := buf.Offset(binding.CPUAddr)
		isWritten := c.graphics.StorageWritten[stage][index]
		var err error
		if c.caps.NeedsBindStorageIndex {
			err = c.runtime.BindStorageBuffer(stage, bindingIndex, buf.Host(), offset, binding.Size, isWritten)
			bindingIndex++
		} else {
			err = c.runtime.BindStorageBuffer(stage, 0, buf.Host(), offset, binding.Size, isWritten)
		}
		if err != nil {
			c.logger.Error("bindHostGraphicsStorageBuffers failed", "err", err, "index", index)
		}
	}
}

// BindHostComputeBuffers issues every host bind call for the compute
// dispatch's const-buffer and storage-buffer slots.
func (c *Cache) BindHostComputeBuffers() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.bindHostComputeUniformBuffers()
	c.bindHostComputeStorageBuffers()
}

func (c *Cache) bindHostComputeUniformBuffers() {
	bindingIndex := 0
	for index := 0; index < NumComputeUniformBuffers; index++ {
		if !c.compute.UniformEnabled[index] {
			continue
		}
		binding := c.compute.Uniform[index]
		buf := c.slots.get(binding.BufferID)
		c.synchronizeBuffer(buf, binding.CPUAddr, binding.Size)
		offset := buf.Offset(binding.CPUAddr)
		var err error
		if c.caps.NeedsBindUniformIndex {
			err = c.runtime.BindComputeUniformBuffer(bindingIndex, buf.Host(), offset, binding.Size)
			bindingIndex++
		} else {
			err = c.runtime.BindComputeUniformBuffer(0, buf.Host(), offset, binding.Size)
		}
		if err != nil {
			c.logger.Error("bindHostComputeUniformBuffers failed", "err", err, "index", index)
		}
	}
}

func (c *Cache) bindHostComputeStorageBuffers() {
	bindingIndex := 0
	for index := 0; index < NumStorageBuffers; index++ {
		if !c.compute.StorageEnabled[index] {
			continue
		}
		binding := c.compute.Storage[index]
		buf := c.slots.get(binding.BufferID)
		c.synchronizeBuffer(buf, binding.CPUAddr, binding.Size)
		offset := buf.Offset(binding.CPUAddr)
		isWritten := c.compute.StorageWritten[index]
		var err error
		if c.caps.NeedsBindStorageIndex {
			err = c.runtime.BindComputeStorageBuffer(bindingIndex, buf.Host(), offset, binding.Size, isWritten)
			bindingIndex++
		} else {
			err = c.runtime.BindComputeStorageBuffer(0, buf.Host(), offset, binding.Size, isWritten)
		}
		if err != nil {
			c.logger.Error("bindHostComputeStorageBuffers failed", "err", err, "index", index)
		}
	}
}

// synchronizeBuffer stages buf's pending CPU-modified ranges to the host,
// returning true if there was nothing pending (a cache hit for the
// fast-uniform-buffer heuristic's hit/shot accounting).
func (c *Cache) synchronizeBuffer(buf *Buffer, cpuAddr uint64, size int) bool {
	if buf == nil || buf.CPUAddr() == 0 {
		return true
	}

	var copies []BufferCopy
	totalSize := 0
	largestCopy := 0
	buf.ForEachUploadRange(cpuAddr, size, func(offset, spanSize int) {
		copies = append(copies, BufferCopy{SrcOffset: totalSize, DstOffset: offset, Size: spanSize})
		totalSize += spanSize
		if spanSize > largestCopy {
			largestCopy = spanSize
		}
	})
	if totalSize == 0 {
		return true
	}
	c.uploadMemory(buf, totalSize, largestCopy, copies)
	return false
}

func (c *Cache) uploadMemory(buf *Buffer, totalSize, largestCopy int, copies []BufferCopy) {
	if c.caps.UseMemoryMaps {
		c.mappedUploadMemory(buf, totalSize, copies)
		return
	}
	c.immediateUploadMemory(buf, largestCopy, copies)
}

func (c *Cache) immediateUploadMemory(buf *Buffer, largestCopy int, copies []BufferCopy) {
	var immediate []byte
	for _, copy := range copies {
		cpuAddr := buf.CPUAddr() + uint64(copy.DstOffset)
		data := c.cpuMemory.GetPointer(cpuAddr, copy.Size)
		if data == nil {
			if immediate == nil {
				immediate = make([]byte, largestCopy)
			}
			c.cpuMemory.ReadBlockUnsafe(cpuAddr, immediate[:copy.Size])
			data = immediate[:copy.Size]
		}
		if err := c.runtime.ImmediateUpload(buf.Host(), copy.DstOffset, data); err != nil {
			c.logger.Error("immediateUploadMemory failed", "err", err)
		}
	}
}

func (c *Cache) mappedUploadMemory(buf *Buffer, totalSize int, copies []BufferCopy) {
	staging, err := c.runtime.UploadStagingBuffer(totalSize)
	if err != nil {
		c.logger.Error("mappedUploadMemory failed to acquire staging buffer", "err", err)
		return
	}
	for i := range copies {
		cpuAddr := buf.CPUAddr() + uint64(copies[i].DstOffset)
		c.cpuMemory.ReadBlockUnsafe(cpuAddr, staging.Mapped[copies[i].SrcOffset:copies[i].SrcOffset+copies[i].Size])
		copies[i].SrcOffset += staging.Offset
	}
	if err := c.runtime.CopyBuffer(buf.Host(), staging.Buffer, copies); err != nil {
		c.logger.Error("mappedUploadMemory copy failed", "err", err)
	}
}

// tickUniformCacheWindow rolls the rolling hit/shot window forward and
// updates the fast-uniform-buffer skip-cache size for the next frame.
func (c *Cache) tickUniformCacheWindow() {
	c.skipCacheSize = c.uniformCache.Tick(DefaultSkipCacheSize)
	c.skipCacheEnabled = c.skipCacheSize > 0
}
