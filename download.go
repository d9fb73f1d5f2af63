package bufcache

// DownloadMemory synchronously flushes every GPU-modified byte in
// [cpuAddr, cpuAddr+size) back into guest RAM, across every buffer that
// range touches. Used by callers that need the CPU to observe GPU writes
// immediately rather than waiting for the next commit/pop cycle.
func (c *Cache) DownloadMemory(cpuAddr uint64, size int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.forEachBufferInRangeLocked(cpuAddr, size, func(_ BufferId, buf *Buffer) {
		var copies []BufferCopy
		totalSize := 0
		largestCopy := 0
		buf.ForEachDownloadRangeWithin(cpuAddr, size, func(offset, spanSize int) {
			copies = append(copies, BufferCopy{SrcOffset: offset, DstOffset: totalSize, Size: spanSize})
			totalSize += spanSize
			if spanSize > largestCopy {
				largestCopy = spanSize
			}
		})
		if totalSize == 0 {
			return
		}
		c.downloadMemoryCopies(buf, totalSize, largestCopy, copies)
	})
}

func (c *Cache) downloadMemoryCopies(buf *Buffer, totalSize, largestCopy int, copies []BufferCopy) {
	if c.caps.UseMemoryMaps {
		staging, err := c.runtime.DownloadStagingBuffer(totalSize)
		if err != nil {
			c.logger.Error("DownloadMemory failed to acquire staging buffer", "err", err)
			return
		}
		for i := range copies {
			copies[i].DstOffset += staging.Offset
		}
		if err := c.runtime.CopyBuffer(staging.Buffer, buf.Host(), copies); err != nil {
			c.logger.Error("DownloadMemory copy failed", "err", err)
			return
		}
		if err := c.runtime.Finish(); err != nil {
			c.logger.Error("DownloadMemory finish failed", "err", err)
			return
		}
		for _, copy := range copies {
			cpuAddr := buf.CPUAddr() + uint64(copy.SrcOffset)
			dstOffset := copy.DstOffset - staging.Offset
			c.cpuMemory.WriteBlockUnsafe(cpuAddr, staging.Mapped[dstOffset:dstOffset+copy.Size])
		}
		return
	}

	immediate := make([]byte, largestCopy)
	for _, copy := range copies {
		if err := c.runtime.ImmediateDownload(buf.Host(), copy.SrcOffset, immediate[:copy.Size]); err != nil {
			c.logger.Error("DownloadMemory immediate download failed", "err", err)
			continue
		}
		cpuAddr := buf.CPUAddr() + uint64(copy.SrcOffset)
		c.cpuMemory.WriteBlockUnsafe(cpuAddr, immediate[:copy.Size])
	}
}

// CachedWriteMemory records a deferred CPU write over [cpuAddr,
// cpuAddr+size) without promoting it into the upload tracker yet; the write
// is batched until FlushCachedWrites runs, so a tight burst of small guest
// writes doesn't churn the dirty-range bitmap on every one.
func (c *Cache) CachedWriteMemory(cpuAddr uint64, size int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.forEachBufferInRangeLocked(cpuAddr, size, func(id BufferId, buf *Buffer) {
		if !buf.HasCachedWrites() {
			c.cachedWriteBufferIDs.add(id)
		}
		buf.CachedCPUWrite(cpuAddr, size)
	})
}

// FlushCachedWrites drains every buffer with a pending cached write into its
// upload tracker, then clears the pending set.
func (c *Cache) FlushCachedWrites() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, id := range c.cachedWriteBufferIDs.snapshot() {
		if buf := c.slots.get(id); buf != nil {
			buf.FlushCachedWrites()
		}
	}
}

// HasUncommittedFlushes reports whether any buffer is waiting to be rolled
// into the next committed download batch.
func (c *Cache) HasUncommittedFlushes() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return !c.uncommittedDownloads.isEmpty()
}

// ShouldWaitAsyncFlushes reports whether the oldest committed batch still
// has buffers pending download.
func (c *Cache) ShouldWaitAsyncFlushes() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.committedDownloads.Len() == 0 {
		return false
	}
	back := c.committedDownloads.Back()
	ids, _ := back.Value.([]BufferId)
	return len(ids) != 0
}

// CommitAsyncFlushes moves the current uncommitted download set into the
// committed queue as one batch and clears the uncommitted set, matching the
// original's "pass by copy" semantics: PopAsyncFlushes later consumes this
// exact snapshot regardless of what gets marked written afterward.
func (c *Cache) CommitAsyncFlushes() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.committedDownloads.PushFront(c.uncommittedDownloads.snapshot())
}

// PopAsyncFlushes downloads the oldest committed batch's pending ranges
// back into guest RAM and retires the batch, regardless of whether it had
// any actual download ranges left by the time it was popped.
func (c *Cache) PopAsyncFlushes() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.committedDownloads.Len() == 0 {
		return
	}
	back := c.committedDownloads.Back()
	defer c.committedDownloads.Remove(back)

	ids, _ := back.Value.([]BufferId)
	if len(ids) == 0 {
		return
	}

	type pendingCopy struct {
		copy     BufferCopy
		bufferID BufferId
	}
	var pending []pendingCopy
	totalSize := 0
	largestCopy := 0
	for _, id := range ids {
		buf := c.slots.get(id)
		if buf == nil {
			continue
		}
		buf.ForEachDownloadRange(func(offset, size int) {
			pending = append(pending, pendingCopy{
				copy:     BufferCopy{SrcOffset: offset, DstOffset: totalSize, Size: size},
				bufferID: id,
			})
			totalSize += size
			if size > largestCopy {
				largestCopy = size
			}
		})
	}
	if len(pending) == 0 {
		return
	}

	if c.caps.UseMemoryMaps {
		staging, err := c.runtime.DownloadStagingBuffer(totalSize)
		if err != nil {
			c.logger.Error("PopAsyncFlushes failed to acquire staging buffer", "err", err)
			return
		}
		for i := range pending {
			copy := pending[i].copy
			copy.DstOffset += staging.Offset
			buf := c.slots.get(pending[i].bufferID)
			if err := c.runtime.CopyBuffer(staging.Buffer, buf.Host(), []BufferCopy{copy}); err != nil {
				c.logger.Error("PopAsyncFlushes copy failed", "err", err)
			}
		}
		if err := c.runtime.Finish(); err != nil {
			c.logger.Error("PopAsyncFlushes finish failed", "err", err)
			return
		}
		for _, p := range pending {
			buf := c.slots.get(p.bufferID)
			cpuAddr := buf.CPUAddr() + uint64(p.copy.SrcOffset)
			c.cpuMemory.WriteBlockUnsafe(cpuAddr, staging.Mapped[p.copy.DstOffset:p.copy.DstOffset+p.copy.Size])
		}
		return
	}

	immediate := make([]byte, largestCopy)
	for _, p := range pending {
		buf := c.slots.get(p.bufferID)
		if err := c.runtime.ImmediateDownload(buf.Host(), p.copy.SrcOffset, immediate[:p.copy.Size]); err != nil {
			c.logger.Error("PopAsyncFlushes immediate download failed", "err", err)
			continue
		}
		cpuAddr := buf.CPUAddr() + uint64(p.copy.SrcOffset)
		c.cpuMemory.WriteBlockUnsafe(cpuAddr, immediate[:p.copy.Size])
	}
}
