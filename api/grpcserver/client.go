package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"wsalloc/api/statspb"
)

// Client is a thin wrapper over a ClientConn for the Stats service.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) GetUsage(ctx context.Context) (*statspb.UsageResponse, error) {
	out := new(statspb.UsageResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/GetUsage",
		new(statspb.UsageRequest), out, grpc.ForceCodec(statspb.Codec{}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListLive(ctx context.Context, state string) (*statspb.ListLiveResponse, error) {
	out := new(statspb.ListLiveResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/ListLive",
		&statspb.ListLiveRequest{State: state}, out, grpc.ForceCodec(statspb.Codec{}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Close() error { return c.conn.Close() }
