// Package statspb defines the wire messages for the wsalloc.v1.Stats
// service. The messages are encoded with protobuf wire format directly
// via protowire, so no generated code is required; field numbers are
// part of the public contract and must not be reused.
package statspb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every Stats wire type.
type Message interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// UsageRequest asks for per-space allocator counters. It carries no
// fields today; the empty message keeps the method signature stable.
type UsageRequest struct{}

func (*UsageRequest) MarshalBinary() ([]byte, error) { return nil, nil }

func (*UsageRequest) UnmarshalBinary(data []byte) error {
	return skipAll(data)
}

// SpaceUsage reports one allocator's counters.
type SpaceUsage struct {
	Space      string // field 1
	Allocs     int64  // field 2
	Frees      int64  // field 3
	BytesInUse int64  // field 4
	PeakBytes  int64  // field 5
}

func (u *SpaceUsage) MarshalBinary() ([]byte, error) {
	var b []byte
	if u.Space != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, u.Space)
	}
	b = appendInt64(b, 2, u.Allocs)
	b = appendInt64(b, 3, u.Frees)
	b = appendInt64(b, 4, u.BytesInUse)
	b = appendInt64(b, 5, u.PeakBytes)
	return b, nil
}

func (u *SpaceUsage) UnmarshalBinary(data []byte) error {
	*u = SpaceUsage{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case 1:
			s, err := decodeString(typ, payload)
			if err != nil {
				return err
			}
			u.Space = s
		case 2:
			v, err := decodeInt64(typ, payload)
			if err != nil {
				return err
			}
			u.Allocs = v
		case 3:
			v, err := decodeInt64(typ, payload)
			if err != nil {
				return err
			}
			u.Frees = v
		case 4:
			v, err := decodeInt64(typ, payload)
			if err != nil {
				return err
			}
			u.BytesInUse = v
		case 5:
			v, err := decodeInt64(typ, payload)
			if err != nil {
				return err
			}
			u.PeakBytes = v
		}
		return nil
	})
}

// UsageResponse lists counters for every configured space.
type UsageResponse struct {
	Spaces []SpaceUsage // field 1
}

func (r *UsageResponse) MarshalBinary() ([]byte, error) {
	var b []byte
	for i := range r.Spaces {
		sub, err := r.Spaces[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b, nil
}

func (r *UsageResponse) UnmarshalBinary(data []byte) error {
	r.Spaces = nil
	return walkFields(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		if num != 1 {
			return nil
		}
		if typ != protowire.BytesType {
			return fmt.Errorf("statspb: field 1: want bytes, got type %d", typ)
		}
		var u SpaceUsage
		if err := u.UnmarshalBinary(payload); err != nil {
			return err
		}
		r.Spaces = append(r.Spaces, u)
		return nil
	})
}

// ListLiveRequest filters the buffer ledger by state name. An empty
// State matches LIVE.
type ListLiveRequest struct {
	State string // field 1
}

func (r *ListLiveRequest) MarshalBinary() ([]byte, error) {
	var b []byte
	if r.State != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, r.State)
	}
	return b, nil
}

func (r *ListLiveRequest) UnmarshalBinary(data []byte) error {
	*r = ListLiveRequest{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		if num != 1 {
			return nil
		}
		s, err := decodeString(typ, payload)
		if err != nil {
			return err
		}
		r.State = s
		return nil
	})
}

// Buffer is one ledger record.
type Buffer struct {
	Workspace uint64 // field 1
	Space     string // field 2
	Size      uint64 // field 3
	Align     uint64 // field 4
	State     string // field 5
	UpdatedAt int64  // field 6, unix nanos
}

func (b *Buffer) MarshalBinary() ([]byte, error) {
	var out []byte
	out = appendUint64(out, 1, b.Workspace)
	if b.Space != "" {
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendString(out, b.Space)
	}
	out = appendUint64(out, 3, b.Size)
	out = appendUint64(out, 4, b.Align)
	if b.State != "" {
		out = protowire.AppendTag(out, 5, protowire.BytesType)
		out = protowire.AppendString(out, b.State)
	}
	out = appendInt64(out, 6, b.UpdatedAt)
	return out, nil
}

func (b *Buffer) UnmarshalBinary(data []byte) error {
	*b = Buffer{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case 1:
			v, err := decodeUint64(typ, payload)
			if err != nil {
				return err
			}
			b.Workspace = v
		case 2:
			s, err := decodeString(typ, payload)
			if err != nil {
				return err
			}
			b.Space = s
		case 3:
			v, err := decodeUint64(typ, payload)
			if err != nil {
				return err
			}
			b.Size = v
		case 4:
			v, err := decodeUint64(typ, payload)
			if err != nil {
				return err
			}
			b.Align = v
		case 5:
			s, err := decodeString(typ, payload)
			if err != nil {
				return err
			}
			b.State = s
		case 6:
			v, err := decodeInt64(typ, payload)
			if err != nil {
				return err
			}
			b.UpdatedAt = v
		}
		return nil
	})
}

// ListLiveResponse carries the matching ledger records.
type ListLiveResponse struct {
	Buffers []Buffer // field 1
}

func (r *ListLiveResponse) MarshalBinary() ([]byte, error) {
	var b []byte
	for i := range r.Buffers {
		sub, err := r.Buffers[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b, nil
}

func (r *ListLiveResponse) UnmarshalBinary(data []byte) error {
	r.Buffers = nil
	return walkFields(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		if num != 1 {
			return nil
		}
		if typ != protowire.BytesType {
			return fmt.Errorf("statspb: field 1: want bytes, got type %d", typ)
		}
		var buf Buffer
		if err := buf.UnmarshalBinary(payload); err != nil {
			return err
		}
		r.Buffers = append(r.Buffers, buf)
		return nil
	})
}
