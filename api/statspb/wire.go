package statspb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	return appendUint64(b, num, uint64(v))
}

func decodeUint64(typ protowire.Type, payload []byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("statspb: want varint, got type %d", typ)
	}
	v, n := protowire.ConsumeVarint(payload)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return v, nil
}

func decodeInt64(typ protowire.Type, payload []byte) (int64, error) {
	v, err := decodeUint64(typ, payload)
	return int64(v), err
}

func decodeString(typ protowire.Type, payload []byte) (string, error) {
	if typ != protowire.BytesType {
		return "", fmt.Errorf("statspb: want bytes, got type %d", typ)
	}
	return string(payload), nil
}

// walkFields iterates top-level fields, handing each callback the raw
// payload: for varints the still-encoded varint bytes, for
// length-delimited fields the contents. Unknown fields are skipped.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, payload []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var payload []byte
		switch typ {
		case protowire.VarintType:
			_, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			payload, b = b[:m], b[m:]
		case protowire.BytesType:
			p, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			payload, b = p, b[m:]
		case protowire.Fixed32Type:
			if len(b) < 4 {
				return fmt.Errorf("statspb: truncated fixed32")
			}
			payload, b = b[:4], b[4:]
		case protowire.Fixed64Type:
			if len(b) < 8 {
				return fmt.Errorf("statspb: truncated fixed64")
			}
			payload, b = b[:8], b[8:]
		default:
			return fmt.Errorf("statspb: unsupported wire type %d", typ)
		}
		if err := fn(num, typ, payload); err != nil {
			return err
		}
	}
	return nil
}

func skipAll(b []byte) error {
	return walkFields(b, func(protowire.Number, protowire.Type, []byte) error { return nil })
}
