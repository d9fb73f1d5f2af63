package bufcache

import "github.com/dolthub/swiss"

// idSet is an insertion-ordered set of BufferId, used for the
// cached_write_buffer_ids and uncommitted_downloads lists: both need
// "insert once, membership test, iterate in insertion order, remove"
// exactly like metadata.tlsfBlock's swiss.Map[BlockAllocationHandle,
// *tlsfBlock] offers for handle lookup, so the membership side reuses the
// same library.
type idSet struct {
	order   []BufferId
	present *swiss.Map[BufferId, struct{}]
}

func newIDSet() *idSet {
	return &idSet{present: swiss.NewMap[BufferId, struct{}](8)}
}

// add appends id if not already present, so enqueueing the same id twice
// leaves a single entry. Reports whether it was newly added.
func (s *idSet) add(id BufferId) bool {
	if _, ok := s.present.Get(id); ok {
		return false
	}
	s.present.Put(id, struct{}{})
	s.order = append(s.order, id)
	return true
}

func (s *idSet) remove(id BufferId) {
	if _, ok := s.present.Get(id); !ok {
		return
	}
	s.present.Delete(id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// replace rewrites the occurrence of oldID to newID in place, keeping its
// position; if newID is already present, oldID is dropped instead so the
// two coalesce into the existing newID entry.
func (s *idSet) replace(oldID, newID BufferId) {
	if _, ok := s.present.Get(oldID); !ok || oldID == newID {
		return
	}
	if _, ok := s.present.Get(newID); ok {
		s.remove(oldID)
		return
	}
	s.present.Delete(oldID)
	s.present.Put(newID, struct{}{})
	for i, v := range s.order {
		if v == oldID {
			s.order[i] = newID
			break
		}
	}
}

// snapshot returns a copy of the set's contents in insertion order, and
// clears the set. Used by commit_async_flushes, which moves the
// uncommitted list by value.
func (s *idSet) snapshot() []BufferId {
	out := make([]BufferId, len(s.order))
	copy(out, s.order)

	s.order = s.order[:0]
	s.present = swiss.NewMap[BufferId, struct{}](8)

	return out
}

func (s *idSet) len() int {
	return len(s.order)
}

func (s *idSet) isEmpty() bool {
	return len(s.order) == 0
}
