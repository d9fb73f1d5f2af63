package bufcache

import (
	"container/list"
	"sync"

	"github.com/FreddyFunk/yuzu/bufferstats"
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Cache is the buffer cache's single entry point. It is a single-threaded
// cooperative module owned by one GPU rasterizer: every public method
// serializes against mutex, and nothing here spawns background work.
type Cache struct {
	mutex  sync.Mutex
	logger *slog.Logger

	runtime   Runtime
	cpuMemory CPUMemory
	gpuMemory GPUMemory
	settings  Settings
	caps      Capabilities

	slots           *slotTable
	directory       *pageDirectory
	destructionRing *destructionRing

	graphics     BindingState
	compute      ComputeBindingState
	vertexStride [NumVertexBuffers]int

	pendingQuadArray quadArrayRange

	hasDeletedBuffers bool

	uncommittedDownloads *idSet
	committedDownloads   *list.List
	cachedWriteBufferIDs *idSet

	uniformCache     bufferstats.UniformCacheStats
	skipCacheSize    int
	skipCacheEnabled bool
}

// New constructs a Cache. logger may be nil, in which case a disabled
// logger is used, matching vam.Allocator's handling of a nil slog.Logger.
func New(runtime Runtime, cpuMemory CPUMemory, gpuMemory GPUMemory, settings Settings, caps Capabilities, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}))
	}

	c := &Cache{
		logger:               logger,
		runtime:              runtime,
		cpuMemory:            cpuMemory,
		gpuMemory:            gpuMemory,
		settings:             settings,
		caps:                 caps,
		directory:            newPageDirectory(),
		destructionRing:      newDestructionRing(),
		uncommittedDownloads: newIDSet(),
		committedDownloads:   list.New(),
		cachedWriteBufferIDs: newIDSet(),
		skipCacheSize:        DefaultSkipCacheSize,
		skipCacheEnabled:     true,
	}
	c.slots = newSlotTable(newNullBuffer())

	return c
}

// DebugStats snapshots cache occupancy for diagnostics: registered buffer
// and directory page counts, the async download pipeline's depth, and the
// current fast-uniform-buffer skip-cache policy.
func (c *Cache) DebugStats() bufferstats.Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return bufferstats.Snapshot{
		RegisteredBuffers: c.slots.len(),
		DirectoryPages:    c.directory.occupiedPages(),
		UncommittedCount:  c.uncommittedDownloads.len(),
		CommittedBatches:  c.committedDownloads.Len(),
		SkipCacheSize:     c.skipCacheSize,
		UniformHitRatio:   c.uniformCache.HitRatio(),
	}
}

// DumpDebugJSON renders DebugStats as JSON, for a debug overlay or log line.
func (c *Cache) DumpDebugJSON() ([]byte, error) {
	data, err := bufferstats.DumpJSON(c.DebugStats())
	if err != nil {
		return nil, cerrors.Wrap(err, "bufcache: failed to dump debug stats")
	}
	return data, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Lock exposes the cache's coarse exclusive lock for callers that need to
// serialize a sequence of cache calls with other rasterizer state, per base
// spec §5. Every exported method on Cache already locks internally for a
// single call; Lock/Unlock are for composing multiple calls atomically.
func (c *Cache) Lock()   { c.mutex.Lock() }
func (c *Cache) Unlock() { c.mutex.Unlock() }

// Buffer returns the buffer for id, or nil if it does not name a
// registered buffer.
func (c *Cache) Buffer(id BufferId) *Buffer {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	buf := c.slots.get(id)
	if buf == nil || id == NullBufferID {
		return buf
	}
	// A deleted buffer keeps its slot until the destruction ring releases
	// it, but is no longer in the page directory.
	if c.directory.at(pageOf(buf.CPUAddr())) != id {
		return nil
	}
	return buf
}

// TickFrame advances the delayed destruction ring, releasing host
// resources for buffers deleted DestructionRingDepth frames ago, and rolls
// the fast-uniform-buffer hit/shot window forward, per base spec §4.5 and
// §5.
func (c *Cache) TickFrame() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.logger.Debug("Cache::TickFrame")

	for _, id := range c.destructionRing.advance() {
		buf := c.slots.get(id)
		if buf == nil {
			continue
		}
		if err := c.runtime.DestroyBuffer(buf.Host()); err != nil {
			c.logger.Error("Cache::TickFrame failed to destroy host buffer", "err", err, "id", id)
		}
		if err := c.slots.erase(id); err != nil {
			c.logger.Error("Cache::TickFrame failed to erase slot", "err", err, "id", id)
		}
	}

	c.tickUniformCacheWindow()

	DebugValidate(lockedValidator{c})
}
