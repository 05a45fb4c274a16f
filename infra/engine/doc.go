// Package engine is the asynchronous execution collaborator: a Stream
// runs submitted tasks one at a time in submission order on its own
// goroutine, and an Event recorded on a stream completes once every
// task submitted before it has run.
//
// Events implement workspace.Event, so a workspace region can be
// marked unready until the stream work touching it is done.
package engine
