// Package disk provisions the VM's qcow2 backing image.
//
// Images are created with qemu-img directly rather than through libvirt
// storage pools.
package disk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// DirPermissions are the permissions for the image directory.
	DirPermissions = 0755

	// FilePermissions are the permissions for VM disk files.
	FilePermissions = 0644
)

// ErrVolumeCreation is returned when the backing image cannot be created.
var ErrVolumeCreation = errors.New("volume creation failed")

// CreateError carries the diagnostic output of a failed qemu-img run.
type CreateError struct {
	Path       string
	Diagnostic string
	Err        error
}

func (e *CreateError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("failed to create volume %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to create volume %s: %v: %s", e.Path, e.Err, e.Diagnostic)
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

// Is makes every CreateError match ErrVolumeCreation.
func (e *CreateError) Is(target error) bool {
	return target == ErrVolumeCreation
}

// Runner executes a command and returns its stdout and stderr separately.
// A non-nil error means the command did not exit zero.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Provisioner creates the VM's backing image at a fixed path.
type Provisioner struct {
	path  string
	run   Runner
	owner func() (uid, gid int, err error)
	chown func(path string, uid, gid int) error
	log   logrus.FieldLogger
}

// NewProvisioner creates a Provisioner for the image at path.
func NewProvisioner(path string, log logrus.FieldLogger) *Provisioner {
	return NewProvisionerWithDeps(path, ExecRunner, NewOwnerResolver().Resolve, os.Chown, log)
}

// NewProvisionerWithDeps creates a Provisioner with injected dependencies.
// This is primarily for testing.
func NewProvisionerWithDeps(
	path string,
	run Runner,
	owner func() (int, int, error),
	chown func(string, int, int) error,
	log logrus.FieldLogger,
) *Provisioner {
	return &Provisioner{
		path:  path,
		run:   run,
		owner: owner,
		chown: chown,
		log:   log,
	}
}

// Path returns the image path.
func (p *Provisioner) Path() string {
	return p.path
}

// CreateVolume creates a qcow2 image of sizeGB gigabytes and returns its
// path. An existing image is reused as-is.
func (p *Provisioner) CreateVolume(ctx context.Context, sizeGB int) (string, error) {
	if sizeGB <= 0 {
		return "", fmt.Errorf("%w: invalid size %dG", ErrVolumeCreation, sizeGB)
	}

	log := p.log.WithFields(logrus.Fields{"path": p.path, "size_gb": sizeGB})

	info, err := os.Stat(p.path)
	switch {
	case err == nil && info.Mode().IsRegular():
		log.Info("Volume already exists, reusing it")
		return p.path, nil
	case err == nil:
		return "", fmt.Errorf("%w: %s exists and is not a regular file", ErrVolumeCreation, p.path)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: failed to check %s: %w", ErrVolumeCreation, p.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), DirPermissions); err != nil {
		return "", fmt.Errorf("%w: failed to create directory for %s: %w", ErrVolumeCreation, p.path, err)
	}

	_, stderr, err := p.run(ctx, "qemu-img", "create", "-f", "qcow2", p.path, fmt.Sprintf("%dG", sizeGB))
	diagnostic := strings.TrimSpace(string(stderr))
	if err != nil {
		return "", &CreateError{Path: p.path, Diagnostic: diagnostic, Err: err}
	}
	if diagnostic != "" {
		log.WithField("stderr", diagnostic).Warn("qemu-img reported diagnostics on success")
	}
	log.Info("Created volume")

	p.setOwnership(log)

	return p.path, nil
}

func (p *Provisioner) setOwnership(log logrus.FieldLogger) {
	uid, gid, err := p.owner()
	if err != nil {
		log.WithError(err).Warn("QEMU owner lookup failed")
	}

	if err := p.chown(p.path, uid, gid); err != nil {
		log.WithError(err).Warn("Failed to set volume ownership")
		return
	}
	if err := os.Chmod(p.path, FilePermissions); err != nil {
		log.WithError(err).Warn("Failed to set volume permissions")
	}
}
