package provision

import (
	"context"
	"sync"

	golibvirt "github.com/digitalocean/go-libvirt"

	"github.com/jbweber/allinone/internal/host"
	"github.com/jbweber/allinone/internal/network"
	"github.com/jbweber/allinone/internal/vm"
)

// callLog records the order collaborators were called in.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type mockMigrator struct {
	calls       *callLog
	MigrateFunc func(ctx context.Context, iface string) (network.Result, error)
	gotIface    string
}

func (m *mockMigrator) Migrate(ctx context.Context, iface string) (network.Result, error) {
	m.calls.add("migrate")
	m.gotIface = iface
	if m.MigrateFunc != nil {
		return m.MigrateFunc(ctx, iface)
	}
	return network.Result{Interface: iface, Bridge: "br0"}, nil
}

type mockRestarter struct {
	calls       *callLog
	name        string
	RestartFunc func(ctx context.Context) error
}

func (m *mockRestarter) Restart(ctx context.Context) error {
	m.calls.add(m.name)
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx)
	}
	return nil
}

type mockVerifier struct {
	calls      *callLog
	VerifyFunc func(name string) error
	gotName    string
}

func (m *mockVerifier) VerifyBridge(name string) error {
	m.calls.add("verify_bridge")
	m.gotName = name
	if m.VerifyFunc != nil {
		return m.VerifyFunc(name)
	}
	return nil
}

type mockSizer struct {
	calls        *callLog
	SnapshotFunc func(ctx context.Context) (host.Snapshot, error)
}

func (m *mockSizer) Snapshot(ctx context.Context) (host.Snapshot, error) {
	m.calls.add("snapshot")
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx)
	}
	return host.Snapshot{FreeDiskGB: 100, FreeMemory: host.Memory{Size: 10, Unit: "G"}, CPUCount: 4}, nil
}

type mockVolumes struct {
	calls      *callLog
	CreateFunc func(ctx context.Context, sizeGB int) (string, error)
	gotSize    int
}

func (m *mockVolumes) CreateVolume(ctx context.Context, sizeGB int) (string, error) {
	m.calls.add("create_volume")
	m.gotSize = sizeGB
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, sizeGB)
	}
	return "/var/lib/libvirt/images/allinone.qcow2", nil
}

type mockVMs struct {
	calls      *callLog
	StateFunc  func(ctx context.Context, name string) (vm.State, error)
	DefineFunc func(ctx context.Context, xml string) (golibvirt.Domain, error)
	StartFunc  func(ctx context.Context, name string) (vm.Outcome, error)
	StopFunc   func(ctx context.Context, name string) (vm.Outcome, error)
	definedXML string
	startName  string
	stopName   string
}

func (m *mockVMs) State(ctx context.Context, name string) (vm.State, error) {
	m.calls.add("state")
	if m.StateFunc != nil {
		return m.StateFunc(ctx, name)
	}
	return vm.StateUndefined, nil
}

func (m *mockVMs) Define(ctx context.Context, xml string) (golibvirt.Domain, error) {
	m.calls.add("define")
	m.definedXML = xml
	if m.DefineFunc != nil {
		return m.DefineFunc(ctx, xml)
	}
	return golibvirt.Domain{Name: "allinone"}, nil
}

func (m *mockVMs) Start(ctx context.Context, name string) (vm.Outcome, error) {
	m.calls.add("start")
	m.startName = name
	if m.StartFunc != nil {
		return m.StartFunc(ctx, name)
	}
	return vm.Outcome{Domain: golibvirt.Domain{Name: name}}, nil
}

func (m *mockVMs) Stop(ctx context.Context, name string) (vm.Outcome, error) {
	m.calls.add("stop")
	m.stopName = name
	if m.StopFunc != nil {
		return m.StopFunc(ctx, name)
	}
	return vm.Outcome{Domain: golibvirt.Domain{Name: name}}, nil
}

// recordingRecorder captures stage names and results.
type recordingRecorder struct {
	mu      sync.Mutex
	stages  []string
	results map[string]error
}

func (r *recordingRecorder) Stage(name string, fn func() error) error {
	err := fn()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, name)
	if r.results == nil {
		r.results = make(map[string]error)
	}
	r.results[name] = err
	return err
}
