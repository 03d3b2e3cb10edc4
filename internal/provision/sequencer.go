// Package provision sequences the first-boot provisioning run and the
// steady-state start/stop operations for the all-in-one VM.
package provision

import (
	"context"
	"errors"
	"fmt"

	golibvirt "github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/allinone/internal/config"
	"github.com/jbweber/allinone/internal/disk"
	"github.com/jbweber/allinone/internal/host"
	"github.com/jbweber/allinone/internal/identity"
	"github.com/jbweber/allinone/internal/libvirt"
	"github.com/jbweber/allinone/internal/metrics"
	"github.com/jbweber/allinone/internal/network"
	"github.com/jbweber/allinone/internal/services"
	"github.com/jbweber/allinone/internal/vm"
)

// Stage names recorded in the run metrics.
const (
	StageAdminInterface = "admin_interface"
	StageMigrate        = "network_migrate"
	StageNetworkRestart = "network_restart"
	StageBridgeVerify   = "bridge_verify"
	StageCompanion      = "companion_restart"
	StageSizing         = "sizing"
	StageVolume         = "volume"
	StageDescriptor     = "descriptor"
	StageDefine         = "define"
	StageStart          = "start"
	StageStop           = "stop"
)

type resourceSizer interface {
	Snapshot(ctx context.Context) (host.Snapshot, error)
}

type bridgeMigrator interface {
	Migrate(ctx context.Context, iface string) (network.Result, error)
}

type bridgeVerifier interface {
	VerifyBridge(name string) error
}

type serviceRestarter interface {
	Restart(ctx context.Context) error
}

type volumeProvisioner interface {
	CreateVolume(ctx context.Context, sizeGB int) (string, error)
}

type vmController interface {
	State(ctx context.Context, name string) (vm.State, error)
	Define(ctx context.Context, xml string) (golibvirt.Domain, error)
	Start(ctx context.Context, name string) (vm.Outcome, error)
	Stop(ctx context.Context, name string) (vm.Outcome, error)
}

type stageRecorder interface {
	Stage(name string, fn func() error) error
}

// Deps are the collaborators of a Sequencer.
type Deps struct {
	ReadAdminInterface func(path string) (string, error)
	Migrator           bridgeMigrator
	Network            serviceRestarter
	Bridge             bridgeVerifier
	Companion          serviceRestarter
	Sizer              resourceSizer
	Volumes            volumeProvisioner
	Identities         func() identity.Identity
	VMs                vmController
	Recorder           stageRecorder
}

// Sequencer runs the provisioning stages in their fixed order. The first
// failing stage aborts the run; nothing is rolled back.
type Sequencer struct {
	cfg  *config.Config
	deps Deps
	log  logrus.FieldLogger
}

// NewSequencer wires a Sequencer to the real host.
func NewSequencer(cfg *config.Config, recorder *metrics.Recorder, log logrus.FieldLogger) *Sequencer {
	run := services.ExecRunner
	deps := Deps{
		ReadAdminInterface: network.ReadAdminInterface,
		Migrator:           network.NewMigrator(cfg.Paths.NetworkScriptsDir, cfg.Paths.AdminNetworkConfig, cfg.Network.Bridge, log),
		Network:            services.NewNetworkService(services.NewSystemdRestarter(), cfg.Services.NetworkUnit, cfg.Services.BridgeUpCommand, run, log),
		Bridge:             network.NewLinkChecker(),
		Companion:          services.NewCompanionService(cfg.Services.CompanionRestartCommand, cfg.Services.CompanionCheckCommand, run, log),
		Sizer:              host.NewSizer(cfg.Paths.StorageDir, cfg.Paths.Proc),
		Volumes:            disk.NewProvisioner(cfg.VolumePath(), log),
		Identities:         identity.New,
		VMs:                vm.NewController(cfg.Libvirt.SocketPath, cfg.Libvirt.ConnectTimeout, log),
	}
	if recorder != nil {
		deps.Recorder = recorder
	}
	return NewSequencerWithDeps(cfg, deps, log)
}

// NewSequencerWithDeps creates a Sequencer with injected collaborators.
func NewSequencerWithDeps(cfg *config.Config, deps Deps, log logrus.FieldLogger) *Sequencer {
	return &Sequencer{cfg: cfg, deps: deps, log: log}
}

// FirstBoot runs the provisioning flow:
//
//	admin interface -> bridge migration -> network restart -> bridge check
//	-> companion restart -> sizing -> volume -> descriptor -> define -> start
//
// The network restart is skipped when the host was already migrated.
// Sizing through define are skipped when the VM is already defined. The
// VM is started only when cfg.FirstBoot.StartVM is set.
func (s *Sequencer) FirstBoot(ctx context.Context) error {
	name := s.cfg.VM.Name
	log := s.log.WithField("vm", name)
	log.Info("Starting first-boot provisioning")

	var iface string
	if err := s.stage(ctx, StageAdminInterface, func() error {
		var err error
		iface, err = s.deps.ReadAdminInterface(s.cfg.Paths.AdminNetworkConfig)
		return err
	}); err != nil {
		return err
	}
	log.WithField("interface", iface).Info("Found admin network interface")

	var migration network.Result
	if err := s.stage(ctx, StageMigrate, func() error {
		var err error
		migration, err = s.deps.Migrator.Migrate(ctx, iface)
		return err
	}); err != nil {
		var stepErr *network.StepError
		if errors.As(err, &stepErr) {
			log.WithFields(logrus.Fields{
				"step":      stepErr.Step,
				"completed": stepErr.Completed,
			}).Error("Bridge migration stopped part way, host network config needs attention")
		}
		return err
	}

	// A migrated host whose bridge is down still needs the restart
	restart := true
	if migration.AlreadyMigrated {
		if err := s.deps.Bridge.VerifyBridge(s.cfg.Network.Bridge); err != nil {
			log.WithError(err).Warn("Network already migrated but bridge is not ready, restarting network")
		} else {
			log.Info("Network already migrated and bridge is up, skipping network restart")
			restart = false
		}
	}

	if restart {
		if err := s.stage(ctx, StageNetworkRestart, func() error {
			return s.deps.Network.Restart(ctx)
		}); err != nil {
			return err
		}
	}

	if err := s.stage(ctx, StageBridgeVerify, func() error {
		return s.deps.Bridge.VerifyBridge(s.cfg.Network.Bridge)
	}); err != nil {
		return err
	}

	if err := s.stage(ctx, StageCompanion, func() error {
		return s.deps.Companion.Restart(ctx)
	}); err != nil {
		return err
	}

	state, err := s.deps.VMs.State(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check VM state: %w", err)
	}

	if state == vm.StateUndefined {
		if err := s.provisionVM(ctx, log); err != nil {
			return err
		}
	} else {
		log.WithField("state", state).Info("VM already defined, skipping provisioning")
	}

	if !s.cfg.FirstBoot.StartVM {
		log.Info("First-boot provisioning complete, VM left inactive")
		return nil
	}

	_, err = s.StartVM(ctx)
	if errors.Is(err, vm.ErrAlreadyActive) {
		log.Info("VM already running")
		err = nil
	}
	if err != nil {
		return err
	}

	log.Info("First-boot provisioning complete")
	return nil
}

// provisionVM sizes, creates and defines the VM.
func (s *Sequencer) provisionVM(ctx context.Context, log logrus.FieldLogger) error {
	var alloc host.Allocation
	if err := s.stage(ctx, StageSizing, func() error {
		snap, err := s.deps.Sizer.Snapshot(ctx)
		if err != nil {
			return err
		}
		alloc, err = host.Allocate(snap)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"free_disk_gb": snap.FreeDiskGB,
			"free_memory":  snap.FreeMemory.String(),
			"cpus":         snap.CPUCount,
		}).Info("Measured host resources")
		return nil
	}); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"disk_gb": alloc.DiskGB,
		"memory":  fmt.Sprintf("%d%s", alloc.MemSize, alloc.MemUnit),
		"vcpu":    alloc.VCPU,
	}).Info("Sized VM")

	var diskPath string
	if err := s.stage(ctx, StageVolume, func() error {
		var err error
		diskPath, err = s.deps.Volumes.CreateVolume(ctx, alloc.DiskGB)
		return err
	}); err != nil {
		return err
	}

	var xml string
	if err := s.stage(ctx, StageDescriptor, func() error {
		id := s.deps.Identities()
		var err error
		xml, err = libvirt.BuildDomainXML(libvirt.DomainSpec{
			Name:       s.cfg.VM.Name,
			DiskPath:   diskPath,
			Bridge:     s.cfg.Network.Bridge,
			Allocation: alloc,
			Identity:   id,
		})
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"uuid": id.UUID.String(),
			"mac":  id.MAC.String(),
		}).Info("Built domain descriptor")
		return nil
	}); err != nil {
		return err
	}

	return s.stage(ctx, StageDefine, func() error {
		_, err := s.deps.VMs.Define(ctx, xml)
		return err
	})
}

// StartVM starts the configured VM and turns autostart on.
func (s *Sequencer) StartVM(ctx context.Context) (vm.Outcome, error) {
	var outcome vm.Outcome
	err := s.stage(ctx, StageStart, func() error {
		var err error
		outcome, err = s.deps.VMs.Start(ctx, s.cfg.VM.Name)
		return err
	})
	s.reportPartial(outcome)
	return outcome, err
}

// StopVM powers off the configured VM and turns autostart off.
func (s *Sequencer) StopVM(ctx context.Context) (vm.Outcome, error) {
	var outcome vm.Outcome
	err := s.stage(ctx, StageStop, func() error {
		var err error
		outcome, err = s.deps.VMs.Stop(ctx, s.cfg.VM.Name)
		return err
	})
	s.reportPartial(outcome)
	return outcome, err
}

func (s *Sequencer) reportPartial(outcome vm.Outcome) {
	if outcome.Partial() {
		s.log.WithField("vm", s.cfg.VM.Name).WithError(outcome.AutostartErr).
			Warn("VM operation succeeded but autostart was not updated")
	}
}

// stage checks ctx and runs fn under the recorder.
func (s *Sequencer) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	run := fn
	if s.deps.Recorder != nil {
		run = func() error { return s.deps.Recorder.Stage(name, fn) }
	}

	if err := run(); err != nil {
		s.log.WithError(err).WithField("stage", name).Error("Stage failed")
		return err
	}
	return nil
}
