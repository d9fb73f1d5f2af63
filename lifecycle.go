package bufcache

import (
	cerrors "github.com/cockroachdb/errors"
)

// createBuffer implements the base design's create_buffer (§4.3): resolve
// overlaps, allocate a new buffer spanning the resolved region, absorb
// every overlapping predecessor into it, and register it in the page
// directory.
func (c *Cache) createBuffer(cpuAddr uint64, wantedSize int) BufferId {
	c.logger.Debug("Cache::createBuffer")

	overlap := c.resolveOverlaps(cpuAddr, wantedSize)

	newSize := int(overlap.end - overlap.begin)
	buf := newBuffer(overlap.begin, newSize)
	buf.MarkWholeBufferAsCPUModified()

	host, err := c.runtime.CreateBuffer(newSize)
	if err != nil {
		// Runtime failures are fatal per the base design's error-handling
		// policy; there is no recovery path at this layer.
		panic(cerrors.Wrap(err, "bufcache: runtime failed to create host buffer"))
	}
	buf.SetHost(host)

	id := c.slots.insert(buf)
	buf.id = id

	accumulateStream := !overlap.hasStreamLeap
	for _, absorbedID := range overlap.absorbedIds {
		c.joinOverlap(id, buf, absorbedID, accumulateStream)
	}

	c.directory.register(id, buf)

	DebugValidate(lockedValidator{c})

	return id
}

// joinOverlap absorbs an overlapping predecessor into the newly created
// buffer: GPU-modified ranges are copied host-to-host and transferred into
// the new buffer's bitmap (with the corresponding CPU-modified bits
// cleared, since the data is now authoritative on the GPU side), the
// download lists are rewritten, the old buffer's stream score is optionally
// inherited, and the old buffer is deleted.
func (c *Cache) joinOverlap(newID BufferId, newBuf *Buffer, oldID BufferId, accumulateStream bool) {
	c.logger.Debug("Cache::joinOverlap")

	oldBuf := c.slots.get(oldID)
	if oldBuf == nil {
		return
	}

	baseOffset := int(oldBuf.CPUAddr() - newBuf.CPUAddr())

	var copies []BufferCopy
	oldBuf.ForEachDownloadRange(func(offset, size int) {
		copies = append(copies, BufferCopy{
			SrcOffset: offset,
			DstOffset: baseOffset + offset,
			Size:      size,
		})
	})

	if len(copies) > 0 {
		if err := c.runtime.CopyBuffer(newBuf.Host(), oldBuf.Host(), copies); err != nil {
			panic(cerrors.Wrap(err, "bufcache: runtime failed to copy absorbed buffer contents"))
		}
		for _, cp := range copies {
			newBuf.gpuModified.MarkRange(cp.DstOffset, cp.Size)
			newBuf.cpuModified.UnmarkRange(cp.DstOffset, cp.Size)
		}
	}

	if accumulateStream {
		newBuf.IncreaseStreamScore(oldBuf.StreamScore() + 1)
	}

	c.rewriteDownloadLists(oldID, newID)
	c.deleteBufferLocked(oldID, oldBuf)
}

// rewriteDownloadLists implements invariant 3/4: every reference to oldID
// in the uncommitted and committed download lists is rewritten to newID,
// with duplicates of newID coalesced.
func (c *Cache) rewriteDownloadLists(oldID, newID BufferId) {
	c.uncommittedDownloads.replace(oldID, newID)
	for node := c.committedDownloads.Front(); node != nil; node = node.Next() {
		ids := node.Value.([]BufferId)
		node.Value = replaceAndDedupe(ids, oldID, newID)
	}
}

func replaceAndDedupe(ids []BufferId, oldID, newID BufferId) []BufferId {
	out := ids[:0]
	seenNew := false
	for _, id := range ids {
		if id == oldID {
			id = newID
		}
		if id == newID {
			if seenNew {
				continue
			}
			seenNew = true
		}
		out = append(out, id)
	}
	return out
}

// DeleteBuffer removes a registered buffer: every binding referencing it
// reverts to the null buffer, its GPU-modified range is preserved nowhere
// (the range becomes CPU-modified so a future reallocation re-uploads it),
// it is unregistered from the page directory, and its host resources are
// deferred to the delayed destruction ring.
func (c *Cache) DeleteBuffer(id BufferId) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.logger.Debug("Cache::DeleteBuffer")

	buf := c.slots.get(id)
	if buf == nil {
		return
	}
	c.deleteBufferLocked(id, buf)
}

// deleteBufferLocked is the shared implementation used both by the public
// DeleteBuffer and by joinOverlap's absorption of a predecessor, matching
// the original's JoinOverlap calling DeleteBuffer directly on the
// overlapped id with no reduced variant.
func (c *Cache) deleteBufferLocked(id BufferId, buf *Buffer) {
	c.scrubBindings(id)
	c.uncommittedDownloads.remove(id)
	c.cachedWriteBufferIDs.remove(id)

	buf.MarkWholeBufferAsCPUModified()
	c.directory.unregister(buf)

	c.destructionRing.push(id)
	c.hasDeletedBuffers = true

	DebugValidate(lockedValidator{c})
}
