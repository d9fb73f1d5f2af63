// Package bufcache implements a GPU buffer cache: the subsystem that
// mediates between a guest GPU's view of memory and a host graphics API's
// buffer objects.
//
// The cache discovers, on every draw and dispatch, which regions of guest
// CPU memory are read or written by the GPU, backs those regions with host
// buffer objects, keeps host and guest contents synchronized in both
// directions, and resolves the host API's index, vertex, uniform, storage
// and transform-feedback buffer bindings.
//
// The cache does not decode draw commands, translate guest virtual
// addresses, or talk to a real graphics API directly; all of that is
// injected through the Runtime, CPUMemory and GPUMemory capability
// interfaces.
package bufcache
