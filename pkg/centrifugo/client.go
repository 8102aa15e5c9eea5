package centrifugo

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
)

// Client publishes batches through the Centrifugo gRPC API.
//
// Client is not safe for concurrent use; the dispatcher calls Publish from a single
// goroutine.
type Client struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
	schema *schema
	apiKey string
	log    *zap.SugaredLogger
}

var _ pubsub.Client = (*Client)(nil)

// NewClient creates a client for cfg.Address.
//
// No connection is made until the first Publish, so an unreachable broker does not
// fail NewClient. An address that is not an http:// or https:// URL with a host
// fails with pubsub.ErrInvalidAddress. Extra dial options are applied after the
// defaults.
func NewClient(cfg Config, log *zap.SugaredLogger, opts ...grpc.DialOption) (*Client, error) {
	target, useTLS, err := parseAddress(cfg.Address)
	if err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	c, err := newClient(conn, conn, cfg.APIKey, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Infow("centrifugo client created", "target", target, "tls", useTLS)
	return c, nil
}

func newClient(conn grpc.ClientConnInterface, closer io.Closer, apiKey string, log *zap.SugaredLogger) (*Client, error) {
	s, err := loadSchema()
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:   conn,
		closer: closer,
		schema: s,
		apiKey: apiKey,
		log:    log,
	}, nil
}

// Factory returns a pubsub.ClientFactory that builds Clients from cfg, with the
// address supplied by the dispatcher options.
func Factory(cfg Config, log *zap.SugaredLogger, opts ...grpc.DialOption) pubsub.ClientFactory {
	return func(_ context.Context, address string) (pubsub.Client, error) {
		cfg.Address = address
		return NewClient(cfg, log, opts...)
	}
}

// Publish sends batch as a single Batch call.
//
// The whole batch fails with *TransportError if the call does not complete, or with
// *LogicError if any reply carries an error.
func (c *Client) Publish(ctx context.Context, batch []pubsub.Publication) error {
	if len(batch) == 0 {
		return nil
	}

	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "apikey "+c.apiKey)
	}

	req := c.buildRequest(batch)
	resp := dynamicpb.NewMessage(c.schema.batchResponse)
	if err := c.conn.Invoke(ctx, BatchMethod, req, resp); err != nil {
		return newTransportError(err)
	}

	if err := c.checkReplies(resp); err != nil {
		return err
	}

	c.log.Debugw("centrifugo batch published", "commands", len(batch))
	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) buildRequest(batch []pubsub.Publication) *dynamicpb.Message {
	s := c.schema
	req := dynamicpb.NewMessage(s.batchRequest)
	commands := req.Mutable(s.commands).List()

	for i, p := range batch {
		pub := dynamicpb.NewMessage(s.publish)
		pub.Set(s.pubChannel, protoreflect.ValueOfString(p.Channel))
		pub.Set(s.pubData, protoreflect.ValueOfBytes(p.Data))

		cmd := dynamicpb.NewMessage(s.command)
		cmd.Set(s.cmdID, protoreflect.ValueOfUint32(uint32(i+1)))
		cmd.Set(s.cmdMethod, protoreflect.ValueOfEnum(methodPublish))
		cmd.Set(s.cmdPublish, protoreflect.ValueOfMessage(pub))

		commands.Append(protoreflect.ValueOfMessage(cmd))
	}
	return req
}

func (c *Client) checkReplies(resp *dynamicpb.Message) error {
	s := c.schema
	replies := resp.Get(s.replies).List()
	for i := 0; i < replies.Len(); i++ {
		reply := replies.Get(i).Message()
		if !reply.Has(s.replyErr) {
			continue
		}
		e := reply.Get(s.replyErr).Message()
		return &LogicError{
			ReplyID: uint32(reply.Get(s.replyID).Uint()),
			Code:    uint32(e.Get(s.errCode).Uint()),
			Message: e.Get(s.errMessage).String(),
		}
	}
	return nil
}

// parseAddress turns a broker URI into a grpc target.
func parseAddress(address string) (string, bool, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", false, fmt.Errorf("%w: %q: %w", pubsub.ErrInvalidAddress, address, err)
	}

	var useTLS bool
	defaultPort := "80"
	switch u.Scheme {
	case "http":
	case "https":
		useTLS = true
		defaultPort = "443"
	default:
		return "", false, fmt.Errorf("%w: %q: unsupported scheme %q", pubsub.ErrInvalidAddress, address, u.Scheme)
	}

	if u.Hostname() == "" {
		return "", false, fmt.Errorf("%w: %q: missing host", pubsub.ErrInvalidAddress, address)
	}

	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return "dns:///" + net.JoinHostPort(u.Hostname(), port), useTLS, nil
}
