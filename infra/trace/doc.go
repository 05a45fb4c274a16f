// Package trace journals workspace lifecycle events (allocate, ready
// attach, wait, free, sync failure) to segmented append-only files.
// The journal is a diagnostic record: replaying it reconstructs which
// buffers were live at any point and whether every free was preceded
// by the wait that made it safe.
package trace
