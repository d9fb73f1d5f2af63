package bufcache

// Topology names the primitive topology the 3D engine is currently
// configured with; the cache only needs to distinguish quad topologies,
// which require a synthesized triangle index buffer on backends lacking
// native quad primitive support.
type Topology int

const (
	TopologyTriangles Topology = iota
	TopologyQuads
	TopologyQuadStrip
)

// IsQuad reports whether t is one of the quad-family topologies.
func (t Topology) IsQuad() bool {
	return t == TopologyQuads || t == TopologyQuadStrip
}

// IndexArrayState is the 3D engine's index buffer register mirror.
type IndexArrayState struct {
	GPUStart uint64
	GPUEnd   uint64
	Count    int
	Format   IndexFormat
	Dirty    bool
	Topology Topology
}

// VertexArrayState is one vertex buffer register mirror slot.
type VertexArrayState struct {
	GPUStart uint64
	Limit    uint64
	Enabled  bool
}

// TransformFeedbackBindingState is one transform-feedback register mirror
// slot.
type TransformFeedbackBindingState struct {
	GPUAddr uint64
	Size    int
	Enabled bool
}

// GraphicsEngineState is the 3D engine register mirror the update pass
// pulls from every pass: index array, vertex arrays, and transform
// feedback. Graphics uniform and storage buffers are not read from here —
// they arrive pushed through Cache.BindGraphicsUniformBuffer and
// Cache.BindGraphicsStorageBuffer at cbuf-bind time, per base spec §4.4.
type GraphicsEngineState interface {
	IndexArray() IndexArrayState
	VertexArray(index int) VertexArrayState
	VertexArrayGroupDirty() bool
	VertexArrayIndexDirty(index int) bool
	TransformFeedbackEnabled() bool
	TransformFeedbackBinding(index int) TransformFeedbackBindingState
}

// ComputeLaunchDescriptor is the compute dispatch's const-buffer
// configuration, pulled fresh every update pass for uniform buffers (unlike
// storage buffers, which are pushed once at bind time through
// Cache.BindComputeStorageBuffer).
type ComputeLaunchDescriptor interface {
	UniformBufferEnabled(index int) bool
	UniformBuffer(index int) (gpuAddr uint64, size int)
}
