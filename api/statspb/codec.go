package statspb

import "fmt"

// Codec marshals Stats messages for gRPC. The server installs it with
// grpc.ForceServerCodec; clients pass grpc.ForceCodec(statspb.Codec{})
// as a call option.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("statspb: cannot marshal %T", v)
	}
	return m.MarshalBinary()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("statspb: cannot unmarshal into %T", v)
	}
	return m.UnmarshalBinary(data)
}

func (Codec) Name() string { return "wsalloc-stats" }
