package trace

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"wsalloc/domain/workspace"
)

// RegionInfo is the payload of every region-scoped trace record. It is
// encoded as protobuf wire format without generated code:
//
//	1: workspace id (varint)
//	2: space        (varint)
//	3: size         (varint)
//	4: alignment    (varint)
type RegionInfo struct {
	Workspace uint64
	Space     workspace.SpaceID
	Size      uint64
	Align     uint64
}

func (r RegionInfo) Encode() []byte {
	b := make([]byte, 0, 4*10)
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Workspace)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Space))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Size)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Align)
	return b
}

func DecodeRegionInfo(b []byte) (RegionInfo, error) {
	var out RegionInfo
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return RegionInfo{}, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.VarintType {
			return RegionInfo{}, fmt.Errorf("trace: unexpected wire type %d for field %d", typ, num)
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return RegionInfo{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case 1:
			out.Workspace = v
		case 2:
			out.Space = workspace.SpaceID(v)
		case 3:
			out.Size = v
		case 4:
			out.Align = v
		default:
			// Unknown varint fields are skipped for forward compatibility.
		}
	}
	return out, nil
}
