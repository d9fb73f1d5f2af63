package bufcache

// BufferId is a stable dense index into the cache's slot table. It survives
// as long as the buffer it names is registered; once a buffer is deleted,
// its id is scrubbed from every binding before the slot is reused.
type BufferId uint32

// NullBufferID is permanently reserved for the null buffer, used as a
// binding sentinel when a range is unresolved or intentionally empty.
const NullBufferID BufferId = 0

// IsNull reports whether id names the null buffer.
func (id BufferId) IsNull() bool {
	return id == NullBufferID
}
