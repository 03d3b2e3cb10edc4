package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Info is a read-only view of the managed VM.
type Info struct {
	Name      string `json:"name" yaml:"name"`
	UUID      string `json:"uuid" yaml:"uuid"`
	State     string `json:"state" yaml:"state"`
	Autostart bool   `json:"autostart" yaml:"autostart"`
	VCPUs     uint16 `json:"vcpus" yaml:"vcpus"`
	MemoryMiB uint64 `json:"memoryMiB" yaml:"memoryMiB"`
}

// Describe reports the VM's state, autostart flag and resources. An absent
// VM is reported as StateUndefined with no error.
func (c *Controller) Describe(ctx context.Context, name string) (Info, error) {
	info := Info{Name: name, State: StateUndefined.String()}

	err := c.withConnection(ctx, func(lv libvirtClient) error {
		dom, state, err := lookup(lv, name)
		if err != nil {
			return err
		}
		info.UUID = uuid.UUID(dom.UUID).String()
		info.State = state.String()

		_, _, memory, vcpus, _, err := lv.DomainGetInfo(dom)
		if err != nil {
			return fmt.Errorf("%w: failed to get info for %s: %w", ErrHypervisorConnect, name, err)
		}
		info.MemoryMiB = memory / 1024
		info.VCPUs = vcpus

		autostart, err := lv.DomainGetAutostart(dom)
		if err != nil {
			c.log.WithError(err).WithField("vm", name).Warn("Failed to get autostart")
		}
		info.Autostart = autostart != 0

		return nil
	})
	if errors.Is(err, ErrVMNotFound) {
		return Info{Name: name, State: StateUndefined.String()}, nil
	}
	if err != nil {
		return Info{Name: name, State: StateUndefined.String()}, err
	}

	return info, nil
}
