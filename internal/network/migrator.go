package network

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInterfaceConfigNotFound means the PXE interface has no ifcfg file.
	ErrInterfaceConfigNotFound = errors.New("interface config not found")

	// ErrConfigWrite means a network config file could not be written.
	ErrConfigWrite = errors.New("failed to write network config")
)

// Step names one stage of the bridge migration.
type Step string

const (
	StepBackup      Step = "backup"
	StepEnslave     Step = "enslave"
	StepBridge      Step = "bridge"
	StepAdminConfig Step = "admin-config"
)

// StepError reports the step a migration failed at and the steps that had
// already been applied. Completed steps are not rolled back.
type StepError struct {
	Step      Step
	Completed []Step
	Err       error
}

func (e *StepError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("bridge migration failed at %s: %v", e.Step, e.Err)
	}
	done := make([]string, len(e.Completed))
	for i, s := range e.Completed {
		done[i] = string(s)
	}
	return fmt.Sprintf("bridge migration failed at %s (completed: %s): %v",
		e.Step, strings.Join(done, ", "), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Result describes a completed migration.
type Result struct {
	Interface       string
	Bridge          string
	AlreadyMigrated bool
	Backup          string
}

// Migrator moves a host's PXE interface under a Linux bridge by editing the
// network-scripts files and the admin network config.
type Migrator struct {
	scriptsDir  string
	adminConfig string
	bridge      string
	log         logrus.FieldLogger
}

// NewMigrator creates a Migrator for the given network-scripts directory,
// admin config file, and bridge name.
func NewMigrator(scriptsDir, adminConfig, bridge string, log logrus.FieldLogger) *Migrator {
	return &Migrator{
		scriptsDir:  scriptsDir,
		adminConfig: adminConfig,
		bridge:      bridge,
		log:         log,
	}
}

// AlreadyMigrated reports whether the bridge config exists and the admin
// config already names the bridge.
func (m *Migrator) AlreadyMigrated() (bool, error) {
	exists, err := fileExists(IfcfgPath(m.scriptsDir, m.bridge))
	if err != nil || !exists {
		return false, err
	}

	current, err := ReadAdminInterface(m.adminConfig)
	if err != nil {
		return false, err
	}

	return current == m.bridge, nil
}

// Migrate enslaves iface to the bridge:
//  1. back up ifcfg-<iface> to ifcfg-<iface>.orig
//  2. drop IPADDR/NETMASK from ifcfg-<iface> and add BRIDGE=<bridge>
//  3. write ifcfg-<bridge> derived from the backup
//  4. point ADMIN_NETWORK.interface at the bridge
//
// A host that is already migrated is left untouched. An existing backup is
// never overwritten: a re-run after a partial migration derives both files
// from the backup, so the pristine config is the only source.
func (m *Migrator) Migrate(ctx context.Context, iface string) (Result, error) {
	result := Result{Interface: iface, Bridge: m.bridge}
	log := m.log.WithFields(logrus.Fields{"interface": iface, "bridge": m.bridge})

	migrated, err := m.AlreadyMigrated()
	if err != nil {
		log.WithError(err).Warn("Migration state check failed, continuing with migration")
	}
	if migrated {
		log.Info("Interface already migrated to bridge")
		result.AlreadyMigrated = true
		return result, nil
	}

	var completed []Step
	fail := func(step Step, err error) (Result, error) {
		return result, &StepError{Step: step, Completed: completed, Err: err}
	}

	if iface == m.bridge {
		return fail(StepBackup, fmt.Errorf("%w: interface %s is the bridge itself", ErrConfigWrite, iface))
	}

	// Step 1: back up the interface config, or reuse an earlier backup
	if err := ctx.Err(); err != nil {
		return fail(StepBackup, err)
	}
	ifcfg := IfcfgPath(m.scriptsDir, iface)
	backup := BackupPath(ifcfg)
	original, reused, err := m.pristineConfig(ifcfg, backup)
	if err != nil {
		return fail(StepBackup, err)
	}
	result.Backup = backup
	completed = append(completed, StepBackup)
	if reused {
		log.WithField("backup", backup).Info("Reusing existing interface config backup")
	} else {
		log.WithField("backup", backup).Info("Backed up interface config")
	}

	// Step 2: enslave the interface
	if err := ctx.Err(); err != nil {
		return fail(StepEnslave, err)
	}
	if err := writeIfChanged(ifcfg, EnslaveToBridge(original, m.bridge)); err != nil {
		return fail(StepEnslave, fmt.Errorf("%w: %w", ErrConfigWrite, err))
	}
	completed = append(completed, StepEnslave)
	log.WithField("path", ifcfg).Info("Rewrote interface config for bridge membership")

	// Step 3: the bridge takes over the interface's addressing
	if err := ctx.Err(); err != nil {
		return fail(StepBridge, err)
	}
	bridgeCfg := IfcfgPath(m.scriptsDir, m.bridge)
	if err := writeIfChanged(bridgeCfg, BridgeFromInterface(original, iface, m.bridge)); err != nil {
		return fail(StepBridge, fmt.Errorf("%w: %w", ErrConfigWrite, err))
	}
	completed = append(completed, StepBridge)
	log.WithField("path", bridgeCfg).Info("Wrote bridge config")

	// Step 4: point the admin network at the bridge
	if err := ctx.Err(); err != nil {
		return fail(StepAdminConfig, err)
	}
	if err := SetAdminInterface(m.adminConfig, m.bridge); err != nil {
		return fail(StepAdminConfig, fmt.Errorf("%w: %w", ErrConfigWrite, err))
	}
	log.WithField("path", m.adminConfig).Info("Updated admin network interface")

	return result, nil
}

// pristineConfig returns the unmodified interface config. When a backup
// from an earlier run exists it is returned as-is and left untouched;
// otherwise ifcfg is copied to backup first.
func (m *Migrator) pristineConfig(ifcfg, backup string) (data []byte, reused bool, err error) {
	hasBackup, err := fileExists(backup)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}
	if hasBackup {
		data, err := os.ReadFile(backup)
		if err != nil {
			return nil, false, fmt.Errorf("%w: failed to read backup: %w", ErrConfigWrite, err)
		}
		return data, true, nil
	}

	exists, err := fileExists(ifcfg)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}
	if !exists {
		return nil, false, fmt.Errorf("%w: %s", ErrInterfaceConfigNotFound, ifcfg)
	}

	data, err = backupFile(ifcfg, backup)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}
	return data, false, nil
}
