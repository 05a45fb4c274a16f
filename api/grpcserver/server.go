// Package grpcserver exposes allocator counters and the buffer ledger
// over gRPC. The wsalloc.v1.Stats service is registered with a
// hand-written ServiceDesc and the statspb codec, so the wire contract
// lives in api/statspb rather than in generated code.
package grpcserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wsalloc/api/statspb"
	"wsalloc/domain/workspace"
	"wsalloc/infra/alloc"
	"wsalloc/infra/ledger"
)

// StatsServer is the service contract behind wsalloc.v1.Stats.
type StatsServer interface {
	GetUsage(ctx context.Context, req *statspb.UsageRequest) (*statspb.UsageResponse, error)
	ListLive(ctx context.Context, req *statspb.ListLiveRequest) (*statspb.ListLiveResponse, error)
}

// Server answers Stats queries from the counting allocators and the
// buffer ledger. Either source may be nil; the matching method then
// returns Unavailable.
type Server struct {
	counters map[workspace.SpaceID]*alloc.Counting
	ledger   *ledger.Ledger
}

func NewServer(counters map[workspace.SpaceID]*alloc.Counting, l *ledger.Ledger) *Server {
	return &Server{counters: counters, ledger: l}
}

func (s *Server) GetUsage(ctx context.Context, req *statspb.UsageRequest) (*statspb.UsageResponse, error) {
	if s.counters == nil {
		return nil, status.Error(codes.Unavailable, "usage counters not configured")
	}
	resp := &statspb.UsageResponse{}
	for _, space := range workspace.Spaces {
		c, ok := s.counters[space]
		if !ok {
			continue
		}
		resp.Spaces = append(resp.Spaces, statspb.SpaceUsage{
			Space:      space.String(),
			Allocs:     c.Allocs(),
			Frees:      c.Frees(),
			BytesInUse: c.BytesInUse(),
			PeakBytes:  c.PeakBytes(),
		})
	}
	return resp, nil
}

func (s *Server) ListLive(ctx context.Context, req *statspb.ListLiveRequest) (*statspb.ListLiveResponse, error) {
	if s.ledger == nil {
		return nil, status.Error(codes.Unavailable, "buffer ledger not configured")
	}
	state, err := parseState(req.State)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp := &statspb.ListLiveResponse{}
	err = s.ledger.ScanByState(state, func(rec ledger.Record) error {
		resp.Buffers = append(resp.Buffers, statspb.Buffer{
			Workspace: rec.Workspace,
			Space:     rec.Space.String(),
			Size:      rec.Size,
			Align:     rec.Align,
			State:     rec.State.String(),
			UpdatedAt: rec.UpdatedAt,
		})
		return nil
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func parseState(name string) (ledger.State, error) {
	switch name {
	case "", "LIVE":
		return ledger.StateLive, nil
	case "RELEASED":
		return ledger.StateReleased, nil
	case "SYNC_FAILED":
		return ledger.StateSyncFailed, nil
	case "PUBLISHED":
		return ledger.StatePublished, nil
	}
	return 0, fmt.Errorf("unknown buffer state %q", name)
}
