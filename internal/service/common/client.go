//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	pb "github.com/oshokin/flatpak-updater/internal/pb/v1"
)

// Client wraps the gRPC StatusService client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the watcher.
	conn *grpc.ClientConn
	// api is the StatusService client interface.
	api pb.StatusServiceClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the watcher.
// The watcher listens on loopback by default, so transport credentials are
// insecure.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial watcher: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         pb.NewStatusServiceClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// GetStatus retrieves the watcher status.
func (c *Client) GetStatus(ctx context.Context) (*update.Status, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.GetStatus(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	status, err := pb.StatusFromStruct(response)
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	return status, nil
}

// RequestUpdate asks the watcher to install the pending update, showing
// portal dialogs for parentWindow.
func (c *Client) RequestUpdate(ctx context.Context, parentWindow string, actor *update.Actor) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.api.RequestUpdate(callCtx, pb.NewUpdateRequest(parentWindow, actor.String())); err != nil {
		return fmt.Errorf("request update: %w", err)
	}

	return nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
