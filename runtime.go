package bufcache

// Handle is an opaque host buffer object. The cache never dereferences it;
// it is created, copied, bound and destroyed exclusively through Runtime.
type Handle interface {
	isBufferHandle()
}

// BufferCopy describes a single staged copy between a source and a
// destination buffer, in bytes.
type BufferCopy struct {
	SrcOffset int
	DstOffset int
	Size      int
}

// StagingAllocation is a host-visible, mappable span of a staging buffer,
// used to marshal bytes between guest RAM and GPU-local memory.
type StagingAllocation struct {
	Buffer Handle
	Mapped []byte
	Offset int
}

// IndexFormat names the element type of an index buffer binding.
type IndexFormat int

const (
	IndexFormatUint8 IndexFormat = iota
	IndexFormatUint16
	IndexFormatUint32
)

// ElementSize returns the byte width of a single index element.
func (f IndexFormat) ElementSize() int {
	switch f {
	case IndexFormatUint8:
		return 1
	case IndexFormatUint16:
		return 2
	case IndexFormatUint32:
		return 4
	default:
		return 4
	}
}

// Runtime is the host graphics API capability interface. The cache issues
// every host-visible effect — buffer creation, copies, and bind calls —
// through this interface; a concrete implementation (OpenGL, Vulkan,
// Metal, ...) lives entirely outside this module's scope, the same way the
// base design treats "the host graphics API itself" as a collaborator.
type Runtime interface {
	// CreateBuffer allocates a host buffer object of the given size.
	CreateBuffer(sizeBytes int) (Handle, error)
	// DestroyBuffer releases a host buffer object. Called only after the
	// delayed destruction ring has advanced past it.
	DestroyBuffer(h Handle) error

	// UploadStagingBuffer and DownloadStagingBuffer acquire a mappable
	// staging allocation of at least size bytes, exclusive to this call
	// until the corresponding CopyBuffer/Finish completes.
	UploadStagingBuffer(size int) (StagingAllocation, error)
	DownloadStagingBuffer(size int) (StagingAllocation, error)
	// CopyBuffer issues a host-side buffer-to-buffer copy.
	CopyBuffer(dst, src Handle, copies []BufferCopy) error
	// Finish blocks until all submitted host work has completed.
	Finish() error

	// ImmediateUpload and ImmediateDownload move bytes between guest RAM
	// and a host buffer without a staging allocation, for backends that
	// do not support memory maps.
	ImmediateUpload(h Handle, offset int, data []byte) error
	ImmediateDownload(h Handle, offset int, data []byte) error

	BindIndexBuffer(h Handle, offset, size int, format IndexFormat) error
	BindQuadArrayIndexBuffer(firstVertex, vertexCount int) error
	BindVertexBuffer(index int, h Handle, offset, size, stride int) error
	BindUniformBuffer(stage, index int, h Handle, offset, size int) error
	BindStorageBuffer(stage, index int, h Handle, offset, size int, isWritten bool) error
	BindTransformFeedbackBuffer(index int, h Handle, offset, size int) error
	BindComputeUniformBuffer(index int, h Handle, offset, size int) error
	BindComputeStorageBuffer(index int, h Handle, offset, size int, isWritten bool) error

	// HasFastBufferSubData reports whether the fast uniform buffer path
	// can push data inline via PushFastUniformBuffer (an OpenGL/Nvidia
	// driver optimization) instead of binding a mapped range.
	HasFastBufferSubData() bool
	// BindFastUniformBuffer establishes the host's dedicated fast uniform
	// range for (stage, index); it is called once on the transition into
	// the fast path, before any PushFastUniformBuffer for that slot.
	BindFastUniformBuffer(stage, index int, h Handle, offset, size int) error
	PushFastUniformBuffer(stage, index int, data []byte) error
	BindMappedUniformBuffer(stage, index int, size int) ([]byte, error)
}

// CPUMemory is the guest-memory capability interface, addressed in CPU
// virtual address space. "Unsafe" reads and writes bypass the invalidation
// tracker because the cache's caller already holds the invalidation-path
// lock.
type CPUMemory interface {
	ReadBlockUnsafe(cpuAddr uint64, dst []byte)
	WriteBlockUnsafe(cpuAddr uint64, src []byte)
	// GetPointer returns a direct pointer span into guest RAM at cpuAddr,
	// used by the immediate upload/download path when the requested range
	// lies within a single contiguous guest page.
	GetPointer(cpuAddr uint64, size int) []byte
}

// GPUMemory is the guest GPU address space capability interface. The cache
// uses it to translate engine register state (which is expressed in GPU
// virtual addresses) into CPU addresses, and to dereference the storage
// buffer descriptor words a bound constant buffer holds.
type GPUMemory interface {
	// GPUToCPUAddress translates a GPU virtual address to a guest CPU
	// address; ok is false when the address is unmapped or untranslatable.
	GPUToCPUAddress(gpuAddr uint64) (cpuAddr uint64, ok bool)
	// BytesToMapEnd returns how many bytes remain from gpuAddr to the end
	// of whatever guest mapping contains it.
	BytesToMapEnd(gpuAddr uint64) int
	// ReadU64 and ReadU32 dereference a little-endian word directly out of
	// GPU address space, used to decode the {address, size} pair packed
	// into a storage buffer descriptor.
	ReadU64(gpuAddr uint64) uint64
	ReadU32(gpuAddr uint64) uint32
}
