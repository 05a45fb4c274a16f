// Package workspace manages multi-space scratch memory for
// accelerator-backed operators. A workspace is three independently
// sized regions (host, pinned-host, device); operators publish their
// memory requirements, callers merge them and allocate a single
// workspace large enough for all of them.
//
// The package is dependency-free. Allocators and completion events
// are collaborators supplied by the caller (see infra/alloc and
// infra/engine).
package workspace
