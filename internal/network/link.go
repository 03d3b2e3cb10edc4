package network

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// ErrBridgeNotReady is returned when the bridge link is missing, not a
// bridge, or administratively down.
var ErrBridgeNotReady = errors.New("bridge not ready")

// LinkStatus is the kernel's view of a network link.
type LinkStatus struct {
	Name     string
	Exists   bool
	IsBridge bool
	Up       bool
}

// LinkChecker inspects links through netlink.
type LinkChecker struct {
	linkByName func(name string) (netlink.Link, error)
}

// NewLinkChecker creates a LinkChecker backed by the host's netlink socket.
func NewLinkChecker() *LinkChecker {
	return &LinkChecker{linkByName: netlink.LinkByName}
}

// Status looks up a link by name. A missing link is not an error.
func (c *LinkChecker) Status(name string) (LinkStatus, error) {
	status := LinkStatus{Name: name}

	link, err := c.linkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return status, nil
		}
		return status, fmt.Errorf("failed to look up link %s: %w", name, err)
	}

	status.Exists = true
	status.IsBridge = link.Type() == "bridge"
	status.Up = link.Attrs().Flags&net.FlagUp != 0

	return status, nil
}

// VerifyBridge checks that name is an existing bridge that is up.
func (c *LinkChecker) VerifyBridge(name string) error {
	status, err := c.Status(name)
	if err != nil {
		return err
	}

	switch {
	case !status.Exists:
		return fmt.Errorf("%w: link %s does not exist", ErrBridgeNotReady, name)
	case !status.IsBridge:
		return fmt.Errorf("%w: link %s is not a bridge", ErrBridgeNotReady, name)
	case !status.Up:
		return fmt.Errorf("%w: link %s is down", ErrBridgeNotReady, name)
	}

	return nil
}
