package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocket is the qemu:///system UNIX socket.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"

	// DefaultTimeout bounds the socket dial.
	DefaultTimeout = 5 * time.Second
)

// Client wraps a go-libvirt connection.
type Client struct {
	libvirt *libvirt.Libvirt
}

// Connect establishes a connection to the local libvirt daemon.
// It returns a Client that must be closed via Close() when done.
//
// If socketPath is empty, DefaultSocket is used.
// If timeout is zero, DefaultTimeout is used.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	// Fall back to the system daemon
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	// Local UNIX socket dialer, bounded by timeout
	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	// Handshake with the daemon
	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l}, nil
}

// ConnectWithContext establishes a connection with context support for cancellation.
// A connection that completes after ctx is done is closed.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connection cancelled: %w", err)
	}

	// Buffered so a late dial never blocks
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	// Dial in the background
	go func() {
		c, err := Connect(socketPath, timeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		// Reap a connection that lands after cancellation
		go func() {
			if res := <-resultCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	// Cleared first, a second Close is a no-op
	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt returns the underlying go-libvirt client for direct API access.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Ping verifies the connection is still alive by calling a simple libvirt API.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// ServerInfo describes the libvirt daemon a Client is connected to.
type ServerInfo struct {
	Version  string
	Hostname string
	URI      string
}

// Info queries the daemon's version, hostname, and connection URI.
func (c *Client) Info() (ServerInfo, error) {
	if c.libvirt == nil {
		return ServerInfo{}, fmt.Errorf("client not connected")
	}

	version, err := c.libvirt.ConnectGetLibVersion()
	if err != nil {
		return ServerInfo{}, fmt.Errorf("failed to get libvirt version: %w", err)
	}

	hostname, err := c.libvirt.ConnectGetHostname()
	if err != nil {
		return ServerInfo{}, fmt.Errorf("failed to get hostname: %w", err)
	}

	uri, err := c.libvirt.ConnectGetUri()
	if err != nil {
		return ServerInfo{}, fmt.Errorf("failed to get URI: %w", err)
	}

	return ServerInfo{
		Version:  FormatVersion(version),
		Hostname: hostname,
		URI:      uri,
	}, nil
}

// FormatVersion renders libvirt's packed version number.
// Format: major * 1,000,000 + minor * 1,000 + release
func FormatVersion(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v/1000)%1000, v%1000)
}
