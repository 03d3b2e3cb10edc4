package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"

	alllibvirt "github.com/jbweber/allinone/internal/libvirt"
)

var (
	// ErrHypervisorConnect means the libvirt connection could not be opened
	// or stopped answering.
	ErrHypervisorConnect = errors.New("failed to connect to hypervisor")

	// ErrDefineFailed means libvirt rejected the domain XML.
	ErrDefineFailed = errors.New("failed to define VM")

	// ErrVMNotFound means no domain with the requested name exists.
	ErrVMNotFound = errors.New("VM not found")

	// ErrAlreadyActive means start was requested for a running VM.
	ErrAlreadyActive = errors.New("VM is already running")

	// ErrLifecycleOp means a start or stop call failed.
	ErrLifecycleOp = errors.New("VM lifecycle operation failed")

	// ErrAutostart means the autostart flag could not be changed. It is
	// reported through Outcome and never returned as an operation error.
	ErrAutostart = errors.New("failed to set VM autostart")
)

// Outcome is the result of a start or stop that succeeded.
type Outcome struct {
	Domain libvirt.Domain

	// AutostartErr is set when the primary operation succeeded but the
	// autostart toggle did not. It wraps ErrAutostart.
	AutostartErr error
}

// Partial reports whether the autostart toggle failed.
func (o Outcome) Partial() bool {
	return o.AutostartErr != nil
}

// Controller drives the define/start/stop transitions of a named VM.
// Every operation opens its own libvirt connection and closes it before
// returning.
type Controller struct {
	connect connectFunc
	log     logrus.FieldLogger
}

// NewController creates a Controller connecting to the libvirt socket at
// socketPath.
func NewController(socketPath string, timeout time.Duration, log logrus.FieldLogger) *Controller {
	return newControllerWithDeps(func(ctx context.Context) (libvirtClient, io.Closer, error) {
		client, err := alllibvirt.ConnectWithContext(ctx, socketPath, timeout)
		if err != nil {
			return nil, nil, err
		}
		return client.Libvirt(), client, nil
	}, log)
}

// newControllerWithDeps creates a Controller with an injected connection source.
// This allows for testing by accepting interfaces instead of concrete types.
func newControllerWithDeps(connect connectFunc, log logrus.FieldLogger) *Controller {
	return &Controller{connect: connect, log: log}
}

// withConnection runs fn against a fresh connection and closes it afterwards.
func (c *Controller) withConnection(ctx context.Context, fn func(lv libvirtClient) error) error {
	lv, closer, err := c.connect(ctx)
	if err != nil {
		c.log.WithError(err).Error("Failed to open libvirt connection")
		return fmt.Errorf("%w: %w", ErrHypervisorConnect, err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			c.log.WithError(err).Warn("Failed to close libvirt connection")
		}
	}()

	return fn(lv)
}

// lookup scans the active then the inactive domain lists for name.
func lookup(lv libvirtClient, name string) (libvirt.Domain, State, error) {
	active, _, err := lv.ConnectListAllDomains(1, libvirt.ConnectListDomainsActive)
	if err != nil {
		return libvirt.Domain{}, StateUndefined, fmt.Errorf("%w: failed to list active domains: %w", ErrHypervisorConnect, err)
	}
	for _, dom := range active {
		if dom.Name == name {
			return dom, StateActive, nil
		}
	}

	inactive, _, err := lv.ConnectListAllDomains(1, libvirt.ConnectListDomainsInactive)
	if err != nil {
		return libvirt.Domain{}, StateUndefined, fmt.Errorf("%w: failed to list inactive domains: %w", ErrHypervisorConnect, err)
	}
	for _, dom := range inactive {
		if dom.Name == name {
			return dom, StateInactive, nil
		}
	}

	return libvirt.Domain{}, StateUndefined, fmt.Errorf("%w: %s", ErrVMNotFound, name)
}

// Lookup finds the domain named name and reports its state.
// Returns ErrVMNotFound when no such domain is defined.
func (c *Controller) Lookup(ctx context.Context, name string) (libvirt.Domain, State, error) {
	var (
		dom   libvirt.Domain
		state State
	)
	err := c.withConnection(ctx, func(lv libvirtClient) error {
		var err error
		dom, state, err = lookup(lv, name)
		return err
	})
	return dom, state, err
}

// State reports the VM's state. An absent VM is StateUndefined, not an error.
func (c *Controller) State(ctx context.Context, name string) (State, error) {
	_, state, err := c.Lookup(ctx, name)
	if errors.Is(err, ErrVMNotFound) {
		return StateUndefined, nil
	}
	return state, err
}

// Define registers the domain XML with libvirt, leaving the VM inactive.
func (c *Controller) Define(ctx context.Context, xml string) (libvirt.Domain, error) {
	var dom libvirt.Domain
	err := c.withConnection(ctx, func(lv libvirtClient) error {
		var err error
		dom, err = lv.DomainDefineXML(xml)
		if err != nil {
			c.log.WithError(err).Error("libvirt rejected the domain XML")
			return fmt.Errorf("%w: %w", ErrDefineFailed, err)
		}
		c.log.WithField("vm", dom.Name).Info("Defined VM")
		return nil
	})
	return dom, err
}

// Start boots an inactive VM and turns autostart on.
//
// Returns ErrAlreadyActive, without attempting a start, when the VM is
// running. An autostart failure leaves the VM running and is reported in
// Outcome.AutostartErr.
func (c *Controller) Start(ctx context.Context, name string) (Outcome, error) {
	var outcome Outcome
	err := c.withConnection(ctx, func(lv libvirtClient) error {
		log := c.log.WithField("vm", name)

		dom, state, err := lookup(lv, name)
		if err != nil {
			log.WithError(err).Error("VM lookup failed")
			return err
		}
		outcome.Domain = dom

		if state == StateActive {
			log.Error("VM is already running")
			return fmt.Errorf("%w: %s", ErrAlreadyActive, name)
		}

		if err := lv.DomainCreate(dom); err != nil {
			log.WithError(err).Error("libvirt failed to start VM")
			return fmt.Errorf("%w: start %s: %w", ErrLifecycleOp, name, err)
		}
		log.Info("Started VM")

		outcome.AutostartErr = c.setAutostart(lv, dom, true)
		return nil
	})
	return outcome, err
}

// Stop hard powers off the VM and turns autostart off. A VM that is already
// inactive is not powered off again.
//
// An autostart failure is reported in Outcome.AutostartErr.
func (c *Controller) Stop(ctx context.Context, name string) (Outcome, error) {
	var outcome Outcome
	err := c.withConnection(ctx, func(lv libvirtClient) error {
		log := c.log.WithField("vm", name)

		dom, state, err := lookup(lv, name)
		if err != nil {
			log.WithError(err).Error("VM lookup failed")
			return err
		}
		outcome.Domain = dom

		if state == StateActive {
			if err := lv.DomainDestroy(dom); err != nil {
				log.WithError(err).Error("libvirt failed to stop VM")
				return fmt.Errorf("%w: stop %s: %w", ErrLifecycleOp, name, err)
			}
			log.Info("Stopped VM")
		} else {
			log.Info("VM is not running, skipping power off")
		}

		outcome.AutostartErr = c.setAutostart(lv, dom, false)
		return nil
	})
	return outcome, err
}

func (c *Controller) setAutostart(lv libvirtClient, dom libvirt.Domain, enabled bool) error {
	var value int32
	if enabled {
		value = 1
	}

	log := c.log.WithFields(logrus.Fields{"vm": dom.Name, "autostart": enabled})
	if err := lv.DomainSetAutostart(dom, value); err != nil {
		log.WithError(err).Warn("Failed to set autostart")
		return fmt.Errorf("%w: %w", ErrAutostart, err)
	}
	log.Info("Set autostart")

	return nil
}
