package workspace

// MemRequirement describes one scratch buffer: byte size and alignment.
// A zero Size is a placeholder meaning "this space is not needed";
// its Alignment is irrelevant. A non-zero Size requires a power-of-two
// Alignment.
type MemRequirement struct {
	Size      uint64
	Alignment uint64
}

// Valid reports whether the requirement satisfies the size/alignment
// invariant. Zero-size requirements are always valid.
func (r MemRequirement) Valid() bool {
	if r.Size == 0 {
		return true
	}
	return r.Alignment > 0 && r.Alignment&(r.Alignment-1) == 0
}

// AlignUp rounds v up to the next multiple of align.
// align must be a power of two; align zero returns v unchanged.
func AlignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// MergeMem computes a requirement that can stand in for both inputs:
// alignment is the max of the two, size is the max of the two rounded
// up to that alignment. The rounding keeps the merged size a multiple
// of the merged alignment, so merged regions can be placed back to
// back without breaking alignment.
//
// MergeMem is commutative and associative; callers may fold any number
// of requirements in any order.
func MergeMem(a, b MemRequirement) (MemRequirement, error) {
	if !a.Valid() || !b.Valid() {
		return MemRequirement{}, ErrInvalidRequirement
	}

	out := MemRequirement{Alignment: a.Alignment}
	if b.Alignment > out.Alignment {
		out.Alignment = b.Alignment
	}
	out.Size = a.Size
	if b.Size > out.Size {
		out.Size = b.Size
	}
	out.Size = AlignUp(out.Size, out.Alignment)
	return out, nil
}

// Requirements holds one MemRequirement per memory space.
// The three spaces are independent; there are no cross-space rules.
type Requirements struct {
	Host   MemRequirement
	Pinned MemRequirement
	Device MemRequirement
}

// Region returns the requirement for the given space.
func (r Requirements) Region(s SpaceID) MemRequirement {
	switch s {
	case SpaceHost:
		return r.Host
	case SpacePinned:
		return r.Pinned
	default:
		return r.Device
	}
}

// Valid reports whether all three per-space requirements are valid.
func (r Requirements) Valid() bool {
	return r.Host.Valid() && r.Pinned.Valid() && r.Device.Valid()
}

// Merge combines two workspace requirements space by space, producing
// a requirement large enough for operators needing either input.
func Merge(a, b Requirements) (Requirements, error) {
	var out Requirements
	var err error
	if out.Host, err = MergeMem(a.Host, b.Host); err != nil {
		return Requirements{}, err
	}
	if out.Pinned, err = MergeMem(a.Pinned, b.Pinned); err != nil {
		return Requirements{}, err
	}
	if out.Device, err = MergeMem(a.Device, b.Device); err != nil {
		return Requirements{}, err
	}
	return out, nil
}

// MergeAll folds Merge over any number of requirements.
func MergeAll(reqs ...Requirements) (Requirements, error) {
	var out Requirements
	var err error
	for _, r := range reqs {
		if out, err = Merge(out, r); err != nil {
			return Requirements{}, err
		}
	}
	return out, nil
}
