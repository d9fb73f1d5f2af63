package bufcache

import cerrors "github.com/cockroachdb/errors"

// Validatable is implemented by anything DebugValidate can check.
type Validatable interface {
	Validate() error
}

// Validate walks the page directory and slot table and checks the
// invariants base design §3/§8 rely on: every directory entry names a
// registered buffer whose range actually overlaps that page, no two
// registered buffers overlap, and the null buffer is never registered.
func (c *Cache) Validate() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.validateLocked()
}

// lockedValidator adapts a Cache already held under its own lock to
// Validatable, for DebugValidate calls made from inside a locked method —
// calling the exported Validate there would deadlock on the non-reentrant
// mutex.
type lockedValidator struct{ c *Cache }

func (v lockedValidator) Validate() error { return v.c.validateLocked() }

func (c *Cache) validateLocked() error {
	var lastID BufferId
	var lastEnd uint64
	for page := uint64(0); page < DirectoryEntries; page++ {
		id := c.directory.at(page)
		if id == NullBufferID {
			continue
		}
		buf := c.slots.get(id)
		if buf == nil {
			return cerrors.Wrapf(ErrDirectoryInconsistent, "page %d names buffer %d which is not registered", page, id)
		}
		addr := page << PageBits
		if buf.End() <= addr || buf.CPUAddr() >= addr+PageSize {
			return cerrors.Wrapf(ErrDirectoryInconsistent, "page %d points at buffer %d but lies outside [%#x, %#x)", page, id, buf.CPUAddr(), buf.End())
		}
		if id != lastID {
			if lastID != NullBufferID && buf.CPUAddr() < lastEnd {
				return cerrors.Newf("bufcache: buffer %d overlaps the previous buffer's range [..., %#x)", id, lastEnd)
			}
			lastID = id
			lastEnd = buf.End()
		}
	}
	return nil
}
