// Package native opens gpucore devices on the Pure Go gogpu/wgpu HAL.
//
// The HAL allocates memory per object and hides memory types, so this
// backend emulates the explicit memory model: memory blocks are bookkeeping
// records, host-visible blocks keep a host copy, and FlushMemory and
// InvalidateMemory move bytes with queue writes and reads. The host memory
// type is reported as not coherent, so callers flush and invalidate.
//
// The backend renders offscreen only. Opening it with a window fails with
// backend.ErrBackendNotAvailable.
//
// Building with the nogpu tag leaves the package empty and the backend
// unregistered.
package native
