package bufcache

// pageDirectory is a flat array mapping guest page -> BufferId. Entry 0
// means "no buffer registered at this page". It is intentionally a single
// dense array rather than an interval tree or hash map: O(1) lookup and a
// cache-friendly scan during overlap resolution, at the cost of
// DirectoryEntries*4 bytes (32 MiB) of address space reserved up front.
type pageDirectory struct {
	entries []BufferId
}

func newPageDirectory() *pageDirectory {
	return &pageDirectory{entries: make([]BufferId, DirectoryEntries)}
}

func pageOf(cpuAddr uint64) uint64 {
	return cpuAddr >> PageBits
}

func (d *pageDirectory) at(page uint64) BufferId {
	return d.entries[page]
}

// occupiedPages counts directory entries naming a registered buffer, for
// debug stats.
func (d *pageDirectory) occupiedPages() int {
	count := 0
	for _, id := range d.entries {
		if id != NullBufferID {
			count++
		}
	}
	return count
}

// register fills every page in [buf.CPUAddr(), buf.End()) with id.
func (d *pageDirectory) register(id BufferId, buf *Buffer) {
	first := pageOf(buf.CPUAddr())
	last := pageOf(buf.End() - 1)
	for p := first; p <= last; p++ {
		d.entries[p] = id
	}
}

// unregister clears every page in [buf.CPUAddr(), buf.End()).
func (d *pageDirectory) unregister(buf *Buffer) {
	first := pageOf(buf.CPUAddr())
	last := pageOf(buf.End() - 1)
	for p := first; p <= last; p++ {
		d.entries[p] = NullBufferID
	}
}

// FindBuffer resolves a guest range to a BufferId, creating or growing a
// backing buffer as necessary. cpuAddr == 0 always yields the null buffer,
// matching the base design's convention that address 0 means "unresolved".
func (c *Cache) FindBuffer(cpuAddr uint64, size int) BufferId {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.findBufferLocked(cpuAddr, size)
}

func (c *Cache) findBufferLocked(cpuAddr uint64, size int) BufferId {
	c.logger.Debug("Cache::FindBuffer")

	if cpuAddr == 0 {
		return NullBufferID
	}

	page := pageOf(cpuAddr)
	id := c.directory.at(page)
	if id == NullBufferID {
		return c.createBuffer(cpuAddr, size)
	}

	buf := c.slots.get(id)
	if buf != nil && buf.IsInBounds(cpuAddr, size) {
		return id
	}

	// The resident buffer doesn't fully cover the request; create will
	// absorb it into a larger span.
	return c.createBuffer(cpuAddr, size)
}

// ForEachBufferInRange walks pages in [cpuAddr, cpuAddr+size), invoking f
// once per intersecting buffer in ascending address order.
func (c *Cache) ForEachBufferInRange(cpuAddr uint64, size int, f func(BufferId, *Buffer)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.forEachBufferInRangeLocked(cpuAddr, size, f)
}

func (c *Cache) forEachBufferInRangeLocked(cpuAddr uint64, size int, f func(BufferId, *Buffer)) {
	if size <= 0 {
		return
	}

	end := cpuAddr + uint64(size)
	page := pageOf(cpuAddr)
	lastPage := pageOf(end - 1)

	for page <= lastPage {
		id := c.directory.at(page)
		if id == NullBufferID {
			page++
			continue
		}

		buf := c.slots.get(id)
		f(id, buf)
		page = pageOf(buf.End()-1) + 1
	}
}
