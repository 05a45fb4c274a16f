package workspace

// SpaceID identifies one of the three memory spaces.
type SpaceID uint8

const (
	SpaceHost SpaceID = iota
	SpacePinned
	SpaceDevice
)

// Spaces lists the three spaces in allocation order.
var Spaces = [3]SpaceID{SpaceHost, SpacePinned, SpaceDevice}

func (s SpaceID) String() string {
	switch s {
	case SpaceHost:
		return "host"
	case SpacePinned:
		return "pinned"
	case SpaceDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Event is a one-shot completion token for asynchronous work that
// touches a region. Synchronize blocks until the work is done and
// returns an error only if the underlying execution engine failed.
type Event interface {
	Synchronize() error
}

// MemRegion is one space's slice of a workspace.
//
// Data is nil iff the region was never allocated. Ready, when non-nil,
// marks the region as unsafe to reclaim until the event completes;
// a nil Ready means the region may be reclaimed immediately.
type MemRegion struct {
	Req   MemRequirement
	Data  []byte
	Ready Event
}

// Workspace is the three-region aggregate handed to operators.
//
// It has value semantics only: copying a Workspace copies the view,
// not the buffers. Ownership lives in Managed; a Workspace obtained
// from Managed.Get is a borrow valid for the owner's lifetime.
type Workspace struct {
	Host   MemRegion
	Pinned MemRegion
	Device MemRegion
}

// Region returns a pointer into the workspace for the given space.
func (w *Workspace) Region(s SpaceID) *MemRegion {
	switch s {
	case SpaceHost:
		return &w.Host
	case SpacePinned:
		return &w.Pinned
	default:
		return &w.Device
	}
}
