package bufcache

import "github.com/pkg/errors"

// slotTable is dense, stable-id storage for *Buffer, giving O(1) lookup by
// BufferId. Slot 0 is reserved for the null buffer and is never returned by
// insert or reused by free.
type slotTable struct {
	slots []*Buffer
	free  []BufferId
}

func newSlotTable(nullBuffer *Buffer) *slotTable {
	return &slotTable{
		slots: []*Buffer{nullBuffer},
	}
}

// insert stores buf and returns its newly assigned id.
func (t *slotTable) insert(buf *Buffer) BufferId {
	if n := len(t.free); n > 0 {
		id := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[id] = buf
		return id
	}

	id := BufferId(len(t.slots))
	t.slots = append(t.slots, buf)
	return id
}

// get returns the buffer for id, or nil if id is out of range or free.
func (t *slotTable) get(id BufferId) *Buffer {
	if int(id) >= len(t.slots) {
		return nil
	}
	return t.slots[id]
}

// erase frees id for reuse. It is a programmer error to erase the null
// buffer or an id that is not currently occupied.
func (t *slotTable) erase(id BufferId) error {
	if id == NullBufferID {
		return errors.New("slotTable: attempted to erase the null buffer")
	}
	if int(id) >= len(t.slots) || t.slots[id] == nil {
		return errors.Errorf("slotTable: id %d is not occupied", id)
	}

	t.slots[id] = nil
	t.free = append(t.free, id)
	return nil
}

// forEach visits every occupied, non-null slot.
func (t *slotTable) forEach(f func(BufferId, *Buffer)) {
	for i := 1; i < len(t.slots); i++ {
		if buf := t.slots[i]; buf != nil {
			f(BufferId(i), buf)
		}
	}
}

// len returns the number of occupied non-null slots, used for debug stats.
func (t *slotTable) len() int {
	count := 0
	for i := 1; i < len(t.slots); i++ {
		if t.slots[i] != nil {
			count++
		}
	}
	return count
}
