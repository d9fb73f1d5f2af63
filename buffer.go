package bufcache

import "github.com/FreddyFunk/yuzu/rangeset"

// Buffer is a contiguous, page-aligned guest region backed by exactly one
// host buffer object. It owns the per-range CPU-modified, GPU-modified and
// cached-write bitmaps that make up the dirty-range tracker.
type Buffer struct {
	id       BufferId
	cpuAddr  uint64
	size     int
	host     Handle
	hasHost  bool
	name     string
	userData any

	cpuModified  *rangeset.Tracker
	gpuModified  *rangeset.Tracker
	cachedWrites *rangeset.Tracker

	// picked is a transient flag set during a single overlap-resolution
	// scan to avoid revisiting a buffer already absorbed into the scan's
	// result. Only the overlap resolver reads or writes it; because
	// absorbed buffers are always deleted immediately afterward, clearing
	// it is implicit. It is a field rather than a member of one of the
	// swiss.Map-backed id sets (see SPEC_FULL.md's dependency table).
	picked bool

	// streamScore counts how many times this buffer has absorbed an
	// overlapping predecessor; a proxy for "this region is a streaming
	// ring".
	streamScore int

	hasCachedWrites bool
}

// newNullBuffer constructs the permanent zero-size buffer backing
// NullBufferID.
func newNullBuffer() *Buffer {
	return &Buffer{
		id:           NullBufferID,
		cpuModified:  rangeset.New(0),
		gpuModified:  rangeset.New(0),
		cachedWrites: rangeset.New(0),
	}
}

// newBuffer constructs a buffer covering [cpuAddr, cpuAddr+size).
func newBuffer(cpuAddr uint64, size int) *Buffer {
	return &Buffer{
		cpuAddr:      cpuAddr,
		size:         size,
		cpuModified:  rangeset.New(size),
		gpuModified:  rangeset.New(size),
		cachedWrites: rangeset.New(size),
	}
}

// CPUAddr returns the buffer's origin guest address.
func (b *Buffer) CPUAddr() uint64 { return b.cpuAddr }

// SizeBytes returns the buffer's size in bytes.
func (b *Buffer) SizeBytes() int { return b.size }

// End returns the exclusive end address of the buffer's guest range.
func (b *Buffer) End() uint64 { return b.cpuAddr + uint64(b.size) }

// Host returns the host buffer handle backing this buffer. It is only
// valid once SetHost has been called (i.e. after create_buffer completes).
func (b *Buffer) Host() Handle { return b.host }

// SetHost attaches the host buffer handle allocated for this buffer.
func (b *Buffer) SetHost(h Handle) {
	b.host = h
	b.hasHost = true
}

// Name returns the buffer's debug name, defaulting to "" if unset.
func (b *Buffer) Name() string { return b.name }

// SetName sets the buffer's debug name.
func (b *Buffer) SetName(name string) { b.name = name }

// UserData returns arbitrary caller-attached data.
func (b *Buffer) UserData() any { return b.userData }

// SetUserData attaches arbitrary caller data.
func (b *Buffer) SetUserData(v any) { b.userData = v }

// Offset returns cpuAddr's byte offset within this buffer. The caller must
// ensure cpuAddr lies within [CPUAddr(), End()).
func (b *Buffer) Offset(cpuAddr uint64) int {
	return int(cpuAddr - b.cpuAddr)
}

// IsInBounds reports whether [cpuAddr, cpuAddr+size) lies entirely within
// this buffer's range.
func (b *Buffer) IsInBounds(cpuAddr uint64, size int) bool {
	if cpuAddr < b.cpuAddr {
		return false
	}
	end := cpuAddr + uint64(size)
	return end <= b.End()
}

// MarkRegionAsCPUModified marks [cpuAddr, cpuAddr+size) dirty for upload.
func (b *Buffer) MarkRegionAsCPUModified(cpuAddr uint64, size int) {
	b.cpuModified.MarkRange(b.Offset(cpuAddr), size)
}

// UnmarkRegionAsCPUModified clears [cpuAddr, cpuAddr+size) from the upload
// tracker, typically after the range has been staged to the host.
func (b *Buffer) UnmarkRegionAsCPUModified(cpuAddr uint64, size int) {
	b.cpuModified.UnmarkRange(b.Offset(cpuAddr), size)
}

// MarkRegionAsGPUModified marks [cpuAddr, cpuAddr+size) as written by the
// GPU, making it eligible for download.
func (b *Buffer) MarkRegionAsGPUModified(cpuAddr uint64, size int) {
	b.gpuModified.MarkRange(b.Offset(cpuAddr), size)
}

// UnmarkRegionAsGPUModified clears the GPU-modified tracker over a range,
// typically after a download has retired it.
func (b *Buffer) UnmarkRegionAsGPUModified(cpuAddr uint64, size int) {
	b.gpuModified.UnmarkRange(b.Offset(cpuAddr), size)
}

// IsRegionGPUModified reports whether any byte in [cpuAddr, cpuAddr+size)
// is marked GPU-modified.
func (b *Buffer) IsRegionGPUModified(cpuAddr uint64, size int) bool {
	return b.gpuModified.IsDirty(b.Offset(cpuAddr), size)
}

// MarkWholeBufferAsCPUModified marks the entire buffer dirty for upload,
// used when a buffer is deleted so a future reallocation re-uploads it.
func (b *Buffer) MarkWholeBufferAsCPUModified() {
	b.cpuModified.MarkRange(0, b.size)
}

// ForEachUploadRange invokes f once per maximal contiguous CPU-modified
// span intersected with [cpuAddr, cpuAddr+size), then clears that span from
// the tracker — the caller is expected to actually stage the copy.
func (b *Buffer) ForEachUploadRange(cpuAddr uint64, size int, f func(offset, size int)) {
	start := b.Offset(cpuAddr)
	b.cpuModified.ForEachRangeWithin(start, size, f)
	b.cpuModified.UnmarkRange(start, size)
}

// ForEachDownloadRange invokes f once per maximal contiguous GPU-modified
// span across the whole buffer.
func (b *Buffer) ForEachDownloadRange(f func(offset, size int)) {
	b.gpuModified.ForEachRange(f)
}

// ForEachDownloadRangeWithin is the clipped overload of
// ForEachDownloadRange, restricted to [cpuAddr, cpuAddr+size).
func (b *Buffer) ForEachDownloadRangeWithin(cpuAddr uint64, size int, f func(offset, size int)) {
	b.gpuModified.ForEachRangeWithin(b.Offset(cpuAddr), size, f)
}

// CachedCPUWrite records a deferred CPU write into the cached-writes
// tracker without yet touching the CPU-modified bitmap.
func (b *Buffer) CachedCPUWrite(cpuAddr uint64, size int) {
	b.cachedWrites.MarkRange(b.Offset(cpuAddr), size)
	b.hasCachedWrites = true
}

// HasCachedWrites reports whether any cached write is pending flush.
func (b *Buffer) HasCachedWrites() bool {
	return b.hasCachedWrites
}

// FlushCachedWrites promotes every pending cached write into the
// CPU-modified bitmap, batching the bitmap churn of a tight write burst
// into one pass.
func (b *Buffer) FlushCachedWrites() {
	if !b.hasCachedWrites {
		return
	}
	b.cachedWrites.ForEachRange(func(offset, size int) {
		b.cpuModified.MarkRange(offset, size)
	})
	b.cachedWrites.Reset(b.size)
	b.hasCachedWrites = false
}

// Pick marks the buffer as visited during the current overlap-resolution
// scan.
func (b *Buffer) Pick() { b.picked = true }

// IsPicked reports whether Pick has been called since the buffer was last
// created (absorbed buffers are deleted immediately, so there is no
// explicit unpick).
func (b *Buffer) IsPicked() bool { return b.picked }

// StreamScore returns the buffer's accumulated merge count.
func (b *Buffer) StreamScore() int { return b.streamScore }

// IncreaseStreamScore increments the buffer's stream score by delta.
func (b *Buffer) IncreaseStreamScore(delta int) { b.streamScore += delta }
