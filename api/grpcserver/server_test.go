package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"wsalloc/domain/workspace"
	"wsalloc/infra/alloc"
	"wsalloc/infra/ledger"
)

func startStats(t *testing.T, srv StatsServer) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := New(srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
	c, err := NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStats_GetUsage(t *testing.T) {
	host := alloc.NewCounting(&alloc.Heap{})
	device := alloc.NewCounting(&alloc.Heap{})

	buf, err := host.Alloc(4096, 64)
	require.NoError(t, err)
	host.Free(buf, 4096, 64)
	buf, err = device.Alloc(1024, 256)
	require.NoError(t, err)
	defer device.Free(buf, 1024, 256)

	c := startStats(t, NewServer(map[workspace.SpaceID]*alloc.Counting{
		workspace.SpaceHost:   host,
		workspace.SpaceDevice: device,
	}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.GetUsage(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Spaces, 2)

	byName := map[string]int64{}
	for _, u := range resp.Spaces {
		byName[u.Space] = u.BytesInUse
	}
	require.Equal(t, int64(0), byName[workspace.SpaceHost.String()])
	require.Equal(t, int64(1024), byName[workspace.SpaceDevice.String()])
}

func TestStats_ListLive(t *testing.T) {
	l, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	require.NoError(t, l.PutLive(1, workspace.SpaceHost, 128, 64))
	require.NoError(t, l.PutLive(2, workspace.SpaceDevice, 256, 256))
	require.NoError(t, l.Transition(2, workspace.SpaceDevice, ledger.StateSyncFailed))

	c := startStats(t, NewServer(nil, l))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.ListLive(ctx, "")
	require.NoError(t, err)
	require.Len(t, resp.Buffers, 1)
	require.Equal(t, uint64(1), resp.Buffers[0].Workspace)
	require.Equal(t, uint64(128), resp.Buffers[0].Size)

	resp, err = c.ListLive(ctx, "SYNC_FAILED")
	require.NoError(t, err)
	require.Len(t, resp.Buffers, 1)
	require.Equal(t, uint64(2), resp.Buffers[0].Workspace)

	_, err = c.ListLive(ctx, "BOGUS")
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	// Usage counters were not wired on this server.
	_, err = c.GetUsage(ctx)
	require.Equal(t, codes.Unavailable, status.Code(err))
}
