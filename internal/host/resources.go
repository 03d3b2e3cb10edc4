// Package host measures host headroom and sizes the VM from it.
package host

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// ErrResourceProbe is returned when a host measurement is unavailable or
// unusable. It aborts the provisioning run; there are no fallback values.
var ErrResourceProbe = errors.New("host resource probe failed")

// AllocationFraction is the share of each free host resource given to the VM.
const AllocationFraction = 0.6

const gib = 1024 * 1024 * 1024

// Memory is an integer amount in a libvirt memory unit (K, M, G, T).
type Memory struct {
	Size int
	Unit string
}

// String formats the amount the way `free -h` prints it, e.g. "10G".
func (m Memory) String() string {
	return fmt.Sprintf("%d%s", m.Size, m.Unit)
}

// Snapshot is one measurement pass over the host.
type Snapshot struct {
	FreeDiskGB int
	FreeMemory Memory
	CPUCount   int
}

// Allocation is the VM's share of a Snapshot.
type Allocation struct {
	DiskGB  int
	MemSize int
	MemUnit string
	VCPU    int
}

// Allocate applies AllocationFraction to each dimension of s independently.
//
// Values are rounded half-up (math.Round on non-negative input). The memory
// unit is carried over from the probe unchanged. VCPU is never below 1.
// A zero disk or memory result is rejected rather than written into a
// descriptor.
func Allocate(s Snapshot) (Allocation, error) {
	if s.FreeDiskGB < 0 || s.FreeMemory.Size < 0 || s.CPUCount < 0 {
		return Allocation{}, fmt.Errorf("%w: negative measurement in %+v", ErrResourceProbe, s)
	}
	if s.FreeMemory.Unit == "" {
		return Allocation{}, fmt.Errorf("%w: memory unit is missing", ErrResourceProbe)
	}

	a := Allocation{
		DiskGB:  fraction(s.FreeDiskGB),
		MemSize: fraction(s.FreeMemory.Size),
		MemUnit: s.FreeMemory.Unit,
		VCPU:    max(fraction(s.CPUCount), 1),
	}

	if a.DiskGB == 0 {
		return Allocation{}, fmt.Errorf("%w: %dGB free disk leaves nothing to allocate", ErrResourceProbe, s.FreeDiskGB)
	}
	if a.MemSize == 0 {
		return Allocation{}, fmt.Errorf("%w: %s free memory leaves nothing to allocate", ErrResourceProbe, s.FreeMemory)
	}

	return a, nil
}

func fraction(v int) int {
	return int(math.Round(float64(v) * AllocationFraction))
}

// Sizer takes host snapshots. The probe funcs are swappable for tests.
type Sizer struct {
	FreeDiskGB func(path string) (int, error)
	FreeMemory func() (Memory, error)
	CPUCount   func() int

	storageDir string
}

// NewSizer returns a Sizer measuring free disk under storageDir and memory
// from the proc filesystem mounted at procMount.
func NewSizer(storageDir, procMount string) *Sizer {
	return &Sizer{
		FreeDiskGB: StatfsFreeGB,
		FreeMemory: func() (Memory, error) { return ProcFreeMemory(procMount) },
		CPUCount:   runtime.NumCPU,
		storageDir: storageDir,
	}
}

// Snapshot measures free disk, free memory, and CPU count in one pass.
func (s *Sizer) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}

	disk, err := s.FreeDiskGB(s.storageDir)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: free disk under %s: %v", ErrResourceProbe, s.storageDir, err)
	}

	mem, err := s.FreeMemory()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: free memory: %v", ErrResourceProbe, err)
	}

	cpus := s.CPUCount()
	if cpus <= 0 {
		return Snapshot{}, fmt.Errorf("%w: cpu count reported as %d", ErrResourceProbe, cpus)
	}

	return Snapshot{FreeDiskGB: disk, FreeMemory: mem, CPUCount: cpus}, nil
}

// StatfsFreeGB returns the space available to unprivileged users on the
// filesystem holding path, in whole GiB.
func StatfsFreeGB(path string) (int, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("failed to get filesystem stats for %s: %w", path, err)
	}

	return int((stat.Bavail * uint64(stat.Bsize)) / gib), nil
}

// memoryUnits are tried largest first; the value is in KiB.
var memoryUnits = []struct {
	unit string
	kib  uint64
}{
	{"T", 1024 * 1024 * 1024},
	{"G", 1024 * 1024},
	{"M", 1024},
	{"K", 1},
}

// ProcFreeMemory reads MemFree from <procMount>/meminfo and expresses it in
// the largest unit holding at least one whole unit, truncated.
func ProcFreeMemory(procMount string) (Memory, error) {
	fs, err := procfs.NewFS(procMount)
	if err != nil {
		return Memory{}, fmt.Errorf("failed to open proc filesystem at %s: %w", procMount, err)
	}

	info, err := fs.Meminfo()
	if err != nil {
		return Memory{}, fmt.Errorf("failed to read meminfo: %w", err)
	}
	if info.MemFree == nil {
		return Memory{}, fmt.Errorf("meminfo has no MemFree entry")
	}

	return memoryFromKiB(*info.MemFree)
}

func memoryFromKiB(kib uint64) (Memory, error) {
	for _, u := range memoryUnits {
		if kib >= u.kib {
			return Memory{Size: int(kib / u.kib), Unit: u.unit}, nil
		}
	}
	return Memory{}, fmt.Errorf("no free memory reported")
}
