package bufcache

// This file collects small in-memory fakes for the capability interfaces
// (Runtime, CPUMemory, GPUMemory, GraphicsEngineState,
// ComputeLaunchDescriptor) so the rest of the package's tests can drive the
// cache end to end without a real host backend or guest address space,
// mirroring how memutils/metadata's tests fake a BlockMetadata's owning
// pool rather than standing up a real Vulkan device.

type fakeHandle struct{ id int }

func (fakeHandle) isBufferHandle() {}

// fakeRuntime is a host backend that records every bind/copy/upload call
// instead of touching real graphics state, and backs every buffer with a
// plain byte slice so ImmediateUpload/ImmediateDownload actually round-trip
// data the way a real backend would.
type fakeRuntime struct {
	nextHandle int
	memory     map[fakeHandle][]byte

	caps Capabilities

	indexBinds      []indexBindCall
	quadBinds       []quadBindCall
	vertexBinds     []vertexBindCall
	uniformBinds    []uniformBindCall
	storageBinds    []storageBindCall
	tfbBinds        []tfbBindCall
	computeUniforms []uniformBindCall
	computeStorages []storageBindCall
	fastBinds       []uniformBindCall
	fastPushes      []fastPushCall
	mappedBinds     []mappedBindCall

	failCreateBuffer bool
}

type indexBindCall struct {
	handle Handle
	offset int
	size   int
	format IndexFormat
}
type quadBindCall struct{ firstVertex, vertexCount int }
type vertexBindCall struct {
	index          int
	handle         Handle
	offset         int
	size           int
	stride         int
}
type uniformBindCall struct {
	stage, index int
	handle       Handle
	offset, size int
}
type storageBindCall struct {
	stage, index int
	handle       Handle
	offset, size int
	written      bool
}
type tfbBindCall struct {
	index        int
	handle       Handle
	offset, size int
}
type fastPushCall struct {
	stage, index int
	data         []byte
}
type mappedBindCall struct {
	stage, index, size int
}

func newFakeRuntime(caps Capabilities) *fakeRuntime {
	return &fakeRuntime{memory: map[fakeHandle][]byte{}, caps: caps}
}

func (r *fakeRuntime) CreateBuffer(sizeBytes int) (Handle, error) {
	if r.failCreateBuffer {
		return nil, errTest
	}
	r.nextHandle++
	h := fakeHandle{r.nextHandle}
	r.memory[h] = make([]byte, sizeBytes)
	return h, nil
}

func (r *fakeRuntime) DestroyBuffer(h Handle) error {
	delete(r.memory, h.(fakeHandle))
	return nil
}

func (r *fakeRuntime) UploadStagingBuffer(size int) (StagingAllocation, error) {
	r.nextHandle++
	h := fakeHandle{r.nextHandle}
	buf := make([]byte, size)
	r.memory[h] = buf
	return StagingAllocation{Buffer: h, Mapped: buf}, nil
}

func (r *fakeRuntime) DownloadStagingBuffer(size int) (StagingAllocation, error) {
	r.nextHandle++
	h := fakeHandle{r.nextHandle}
	buf := make([]byte, size)
	r.memory[h] = buf
	return StagingAllocation{Buffer: h, Mapped: buf}, nil
}

func (r *fakeRuntime) CopyBuffer(dst, src Handle, copies []BufferCopy) error {
	dstBuf := r.bufFor(dst)
	srcBuf := r.bufFor(src)
	for _, c := range copies {
		if dstBuf != nil && srcBuf != nil {
			copy(dstBuf[c.DstOffset:c.DstOffset+c.Size], srcBuf[c.SrcOffset:c.SrcOffset+c.Size])
		}
	}
	return nil
}

func (r *fakeRuntime) bufFor(h Handle) []byte {
	if fh, ok := h.(fakeHandle); ok {
		return r.memory[fh]
	}
	return nil
}

func (r *fakeRuntime) Finish() error { return nil }

func (r *fakeRuntime) ImmediateUpload(h Handle, offset int, data []byte) error {
	buf := r.bufFor(h)
	copy(buf[offset:offset+len(data)], data)
	return nil
}

func (r *fakeRuntime) ImmediateDownload(h Handle, offset int, data []byte) error {
	buf := r.bufFor(h)
	copy(data, buf[offset:offset+len(data)])
	return nil
}

func (r *fakeRuntime) BindIndexBuffer(h Handle, offset, size int, format IndexFormat) error {
	r.indexBinds = append(r.indexBinds, indexBindCall{h, offset, size, format})
	return nil
}

func (r *fakeRuntime) BindQuadArrayIndexBuffer(firstVertex, vertexCount int) error {
	r.quadBinds = append(r.quadBinds, quadBindCall{firstVertex, vertexCount})
	return nil
}

func (r *fakeRuntime) BindVertexBuffer(index int, h Handle, offset, size, stride int) error {
	r.vertexBinds = append(r.vertexBinds, vertexBindCall{index, h, offset, size, stride})
	return nil
}

func (r *fakeRuntime) BindUniformBuffer(stage, index int, h Handle, offset, size int) error {
	r.uniformBinds = append(r.uniformBinds, uniformBindCall{stage, index, h, offset, size})
	return nil
}

func (r *fakeRuntime) BindStorageBuffer(stage, index int, h Handle, offset, size int, isWritten bool) error {
	r.storageBinds = append(r.storageBinds, storageBindCall{stage, index, h, offset, size, isWritten})
	return nil
}

func (r *fakeRuntime) BindTransformFeedbackBuffer(index int, h Handle, offset, size int) error {
	r.tfbBinds = append(r.tfbBinds, tfbBindCall{index, h, offset, size})
	return nil
}

func (r *fakeRuntime) BindComputeUniformBuffer(index int, h Handle, offset, size int) error {
	r.computeUniforms = append(r.computeUniforms, uniformBindCall{index: index, handle: h, offset: offset, size: size})
	return nil
}

func (r *fakeRuntime) BindComputeStorageBuffer(index int, h Handle, offset, size int, isWritten bool) error {
	r.computeStorages = append(r.computeStorages, storageBindCall{index: index, handle: h, offset: offset, size: size, written: isWritten})
	return nil
}

func (r *fakeRuntime) HasFastBufferSubData() bool { return r.caps.IsOpenGL }

func (r *fakeRuntime) BindFastUniformBuffer(stage, index int, h Handle, offset, size int) error {
	r.fastBinds = append(r.fastBinds, uniformBindCall{stage, index, h, offset, size})
	return nil
}

func (r *fakeRuntime) PushFastUniformBuffer(stage, index int, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	r.fastPushes = append(r.fastPushes, fastPushCall{stage, index, cp})
	return nil
}

func (r *fakeRuntime) BindMappedUniformBuffer(stage, index int, size int) ([]byte, error) {
	r.mappedBinds = append(r.mappedBinds, mappedBindCall{stage, index, size})
	return make([]byte, size), nil
}

var errTest = testError("bufcache test: injected failure")

type testError string

func (e testError) Error() string { return string(e) }

// fakeGuestMemory backs both CPUMemory and GPUMemory with a flat byte slice
// addressed identically in CPU and GPU space (gpuAddr == cpuAddr), which is
// enough to exercise the cache's own logic without modeling a real MMU.
type fakeGuestMemory struct {
	ram []byte
}

func newFakeGuestMemory(size int) *fakeGuestMemory {
	return &fakeGuestMemory{ram: make([]byte, size)}
}

func (m *fakeGuestMemory) ReadBlockUnsafe(cpuAddr uint64, dst []byte) {
	copy(dst, m.ram[cpuAddr:cpuAddr+uint64(len(dst))])
}

func (m *fakeGuestMemory) WriteBlockUnsafe(cpuAddr uint64, src []byte) {
	copy(m.ram[cpuAddr:cpuAddr+uint64(len(src))], src)
}

func (m *fakeGuestMemory) GetPointer(cpuAddr uint64, size int) []byte {
	return nil // force the immediate-copy fallback path in tests
}

func (m *fakeGuestMemory) GPUToCPUAddress(gpuAddr uint64) (uint64, bool) {
	if gpuAddr == 0 {
		return 0, false
	}
	return gpuAddr, true
}

func (m *fakeGuestMemory) BytesToMapEnd(gpuAddr uint64) int {
	return len(m.ram) - int(gpuAddr)
}

func (m *fakeGuestMemory) ReadU64(gpuAddr uint64) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(m.ram[gpuAddr+uint64(i)]) << (8 * i)
	}
	return v
}

func (m *fakeGuestMemory) ReadU32(gpuAddr uint64) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(m.ram[gpuAddr+uint64(i)]) << (8 * i)
	}
	return v
}

func (m *fakeGuestMemory) WriteU64(gpuAddr uint64, v uint64) {
	for i := 0; i < 8; i++ {
		m.ram[gpuAddr+uint64(i)] = byte(v >> (8 * i))
	}
}

func (m *fakeGuestMemory) WriteU32(gpuAddr uint64, v uint32) {
	for i := 0; i < 4; i++ {
		m.ram[gpuAddr+uint64(i)] = byte(v >> (8 * i))
	}
}

// fakeGraphicsEngine is a minimal GraphicsEngineState with directly settable
// fields, standing in for the 3D engine's register mirror.
type fakeGraphicsEngine struct {
	index          IndexArrayState
	vertex         [NumVertexBuffers]VertexArrayState
	groupDirty     bool
	indexDirty     [NumVertexBuffers]bool
	tfbEnabled     bool
	tfb            [NumTransformFeedbackBuffers]TransformFeedbackBindingState
}

func (e *fakeGraphicsEngine) IndexArray() IndexArrayState { return e.index }
func (e *fakeGraphicsEngine) VertexArray(index int) VertexArrayState {
	return e.vertex[index]
}
func (e *fakeGraphicsEngine) VertexArrayGroupDirty() bool { return e.groupDirty }
func (e *fakeGraphicsEngine) VertexArrayIndexDirty(index int) bool {
	return e.indexDirty[index]
}
func (e *fakeGraphicsEngine) TransformFeedbackEnabled() bool { return e.tfbEnabled }
func (e *fakeGraphicsEngine) TransformFeedbackBinding(index int) TransformFeedbackBindingState {
	return e.tfb[index]
}

// fakeComputeLaunch is a minimal ComputeLaunchDescriptor.
type fakeComputeLaunch struct {
	enabled [NumComputeUniformBuffers]bool
	addr    [NumComputeUniformBuffers]uint64
	size    [NumComputeUniformBuffers]int
}

func (l *fakeComputeLaunch) UniformBufferEnabled(index int) bool { return l.enabled[index] }
func (l *fakeComputeLaunch) UniformBuffer(index int) (uint64, int) {
	return l.addr[index], l.size[index]
}

// Range is a small (offset, size) pair test helpers collect
// ForEachUploadRange/ForEachDownloadRange callbacks into for assertions.
type Range struct{ Offset, Size int }

func newTestCache(caps Capabilities) (*Cache, *fakeRuntime, *fakeGuestMemory) {
	rt := newFakeRuntime(caps)
	mem := newFakeGuestMemory(1 << 20)
	c := New(rt, mem, mem, Settings{}, caps, nil)
	return c, rt, mem
}
