package client

import (
	"context"
	"fmt"
	"time"

	"statesync/internal/pkg/log"
	"statesync/internal/pkg/stream"
	"statesync/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Client connects to a state server and serves as the transport of a session.
type Client struct {
	serverAddr string
	dialOpts   []grpc.DialOption

	conn  *grpc.ClientConn
	state wire.StateClient
}

// Cfg configures a Client.
type Cfg func(*Client) error

// WithServerPort sets the port of a server on localhost.
func WithServerPort(p uint16) Cfg {
	return func(c *Client) error {
		c.serverAddr = fmt.Sprintf("localhost:%d", p)
		return nil
	}
}

// WithAddress sets the server address.
func WithAddress(addr string) Cfg {
	return func(c *Client) error {
		if addr == "" {
			return errors.New("empty server address")
		}
		c.serverAddr = addr
		return nil
	}
}

// WithDialOptions appends gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Cfg {
	return func(c *Client) error {
		c.dialOpts = append(c.dialOpts, opts...)
		return nil
	}
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfgs ...Cfg) (*Client, error) {
	client := &Client{}
	for _, cfg := range cfgs {
		if err := cfg(client); err != nil {
			return nil, errors.Wrap(err, "apply Client cfg failed")
		}
	}
	if client.serverAddr == "" {
		return nil, ErrNoAddress
	}
	return client, nil
}

// Address returns the server address.
func (c *Client) Address() string {
	return c.serverAddr
}

// Connect establishes the connection to the server. Calling it again
// replaces the previous connection.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return errors.Wrap(err, "close client connection failed")
		}
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()), // TODO: use TLS
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName)),
	}, c.dialOpts...)
	var err error
	c.conn, err = grpc.DialContext(ctx, c.serverAddr, opts...)
	if err != nil {
		return errors.Wrapf(err, "connect to %s failed", c.serverAddr)
	}
	c.state = wire.NewStateClient(c.conn)
	logger.WithField("address", c.serverAddr).Debug("client connected")
	return nil
}

// SubscribeStateUpdates opens the stream of state updates.
func (c *Client) SubscribeStateUpdates(ctx context.Context, interval time.Duration) (stream.Receiver[*wire.StateUpdate], error) {
	if c.state == nil {
		return nil, ErrNotConnected
	}
	sub, err := c.state.SubscribeStateUpdates(ctx, &wire.SubscribeRequest{UpdateInterval: interval.Seconds()})
	if err != nil {
		return nil, errors.Wrap(err, "call subscribe state updates failed")
	}
	return &updateReceiver{sub}, nil
}

// UpdateState opens the stream of write batches.
func (c *Client) UpdateState(ctx context.Context) (stream.Sender[*wire.UpdateStateRequest], error) {
	if c.state == nil {
		return nil, ErrNotConnected
	}
	st, err := c.state.UpdateState(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "call update state failed")
	}
	return &batchSender{st}, nil
}

// UpdateLocks acquires or releases a resource lock.
func (c *Client) UpdateLocks(ctx context.Context, req *wire.LockRequest) (*wire.LockResponse, error) {
	if c.state == nil {
		return nil, ErrNotConnected
	}
	logger.WithFields(log.LockToFields(req)).Debug("sending lock request")
	resp, err := c.state.UpdateLocks(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "call update locks failed")
	}
	return resp, nil
}

// Close closes the connection to the server.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.state = nil, nil
	if err != nil {
		return errors.Wrap(err, "close client connection failed")
	}
	return nil
}

type updateReceiver struct {
	stream wire.State_SubscribeStateUpdatesClient
}

func (r *updateReceiver) Recv() (*wire.StateUpdate, error) {
	msg, err := r.stream.Recv()
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.UpdateToFields(msg)).Trace("received state update")
	return msg, nil
}

// batchSender ends the client stream with CloseAndRecv so the server's
// summary is observed before the stream is torn down.
type batchSender struct {
	stream wire.State_UpdateStateClient
}

func (s *batchSender) Send(req *wire.UpdateStateRequest) error {
	logger.WithFields(log.BatchToFields(req)).Trace("sending batch")
	return s.stream.Send(req)
}

func (s *batchSender) CloseSend() error {
	resp, err := s.stream.CloseAndRecv()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"applied":  resp.Applied,
		"rejected": resp.Rejected,
	}).Debug("update stream closed")
	return nil
}
