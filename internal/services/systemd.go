package services

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// systemdConn is the subset of *dbus.Conn used to restart units.
type systemdConn interface {
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

// SystemdRestarter restarts units through systemd's D-Bus API.
type SystemdRestarter struct {
	connect func(ctx context.Context) (systemdConn, error)
}

// NewSystemdRestarter returns a restarter using the system bus.
func NewSystemdRestarter() *SystemdRestarter {
	return &SystemdRestarter{
		connect: func(ctx context.Context) (systemdConn, error) {
			return dbus.NewSystemConnectionContext(ctx)
		},
	}
}

// RestartUnit restarts name and waits for the job to finish.
// Any job result other than "done" is an error.
func (r *SystemdRestarter) RestartUnit(ctx context.Context, name string) error {
	conn, err := r.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	ch := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, name, "replace", ch); err != nil {
		return fmt.Errorf("failed to restart %s: %w", name, err)
	}

	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("restart of %s finished with result %q", name, result)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for restart of %s: %w", name, ctx.Err())
	}
}
