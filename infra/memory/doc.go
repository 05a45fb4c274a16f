// Package memory provides small reusable memory primitives: a typed
// object pool used by the arena allocator for its free-block metadata,
// and a lock-free SPSC ring used to hand owned workspaces to the
// background reclaimer.
//
// The package is dependency-free.
package memory
