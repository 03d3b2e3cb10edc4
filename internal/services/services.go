// Package services restarts the host services that depend on the bridge
// migration: the network stack and the companion provisioning service.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNetworkRestart means neither the unit restart nor the fallback
	// bring-up command succeeded.
	ErrNetworkRestart = errors.New("failed to restart network")

	// ErrCompanionService means the provisioning service could not be
	// restarted or did not pass its check.
	ErrCompanionService = errors.New("companion service not ready")
)

// UnitRestarter restarts a service unit.
type UnitRestarter interface {
	RestartUnit(ctx context.Context, name string) error
}

// NetworkService restarts the host network stack.
type NetworkService struct {
	restarter UnitRestarter
	unit      string
	fallback  []string
	run       Runner
	log       logrus.FieldLogger
}

// NewNetworkService creates a NetworkService restarting unit, running the
// fallback command when the unit restart fails.
func NewNetworkService(restarter UnitRestarter, unit string, fallback []string, run Runner, log logrus.FieldLogger) *NetworkService {
	return &NetworkService{
		restarter: restarter,
		unit:      unit,
		fallback:  fallback,
		run:       run,
		log:       log,
	}
}

// Restart restarts the network unit, falling back to the bring-up command.
func (s *NetworkService) Restart(ctx context.Context) error {
	log := s.log.WithField("unit", s.unit)

	err := s.restarter.RestartUnit(ctx, s.unit)
	if err == nil {
		log.Info("Restarted network service")
		return nil
	}
	log.WithError(err).Warn("Network service restart failed, running fallback")

	if len(s.fallback) == 0 {
		return fmt.Errorf("%w: %w", ErrNetworkRestart, err)
	}

	if _, fallbackErr := s.run(ctx, s.fallback); fallbackErr != nil {
		return fmt.Errorf("%w: %w", ErrNetworkRestart, errors.Join(err, fallbackErr))
	}
	log.WithField("command", strings.Join(s.fallback, " ")).Info("Brought network up with fallback command")

	return nil
}

// CompanionService restarts the provisioning service and checks it.
type CompanionService struct {
	restart []string
	check   []string
	run     Runner
	log     logrus.FieldLogger
}

// NewCompanionService creates a CompanionService from restart and check
// commands.
func NewCompanionService(restart, check []string, run Runner, log logrus.FieldLogger) *CompanionService {
	return &CompanionService{
		restart: restart,
		check:   check,
		run:     run,
		log:     log,
	}
}

// Restart runs the restart command and then the check command.
func (s *CompanionService) Restart(ctx context.Context) error {
	if _, err := s.run(ctx, s.restart); err != nil {
		s.log.WithError(err).Error("Companion service restart failed")
		return fmt.Errorf("%w: restart: %w", ErrCompanionService, err)
	}
	s.log.WithField("command", strings.Join(s.restart, " ")).Info("Restarted companion service")

	if len(s.check) == 0 {
		return nil
	}

	output, err := s.run(ctx, s.check)
	if err != nil {
		s.log.WithError(err).Error("Companion service check failed")
		return fmt.Errorf("%w: check: %w", ErrCompanionService, err)
	}
	s.log.WithField("output", strings.TrimSpace(string(output))).Info("Companion service is ready")

	return nil
}
