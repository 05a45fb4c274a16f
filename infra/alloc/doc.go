// Package alloc provides the allocator collaborators a workspace is
// carved from: a Go-heap allocator for general host memory, a
// capacity-bounded arena that stands in for pinned-host and device
// memory, and counting/metrics wrappers that instrument any of them.
//
// All allocators implement workspace.Allocator and are safe for
// concurrent use.
package alloc
