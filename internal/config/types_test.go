package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configYAML := `vm:
  name: allinone_test
libvirt:
  connect_timeout: 10s
paths:
  storage_dir: /srv/images
network:
  bridge: br1
first_boot:
  start_vm: true
logging:
  level: DEBUG
  stderr: false
metrics:
  textfile: /var/lib/node_exporter/allinone.prom
`
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "allinone_test", cfg.VM.Name)
	assert.Equal(t, 10*time.Second, cfg.Libvirt.ConnectTimeout)
	assert.Equal(t, "/srv/images", cfg.Paths.StorageDir)
	assert.Equal(t, "/srv/images/allinone_test.qcow2", cfg.VolumePath())
	assert.Equal(t, "br1", cfg.Network.Bridge)
	assert.Equal(t, []string{"ifup", "br1"}, cfg.Services.BridgeUpCommand)
	assert.True(t, cfg.FirstBoot.StartVM)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.LogToStderr(true))
	assert.Equal(t, "/var/lib/node_exporter/allinone.prom", cfg.Metrics.Textfile)

	// Untouched sections keep their defaults
	assert.Equal(t, "/var/run/libvirt/libvirt-sock", cfg.Libvirt.SocketPath)
	assert.Equal(t, "/etc/fuel/astute.yaml", cfg.Paths.AdminNetworkConfig)
}

func TestLoadFromFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "allinone", cfg.VM.Name)
	assert.Equal(t, 5*time.Second, cfg.Libvirt.ConnectTimeout)
	assert.Equal(t, "/var/lib/libvirt/images/allinone.qcow2", cfg.VolumePath())
	assert.Equal(t, "/etc/sysconfig/network-scripts", cfg.Paths.NetworkScriptsDir)
	assert.Equal(t, "br0", cfg.Network.Bridge)
	assert.Equal(t, "network.service", cfg.Services.NetworkUnit)
	assert.Equal(t, []string{"ifup", "br0"}, cfg.Services.BridgeUpCommand)
	assert.Equal(t, []string{"dockerctl", "restart", "cobbler"}, cfg.Services.CompanionRestartCommand)
	assert.Equal(t, []string{"dockerctl", "check", "cobbler"}, cfg.Services.CompanionCheckCommand)
	assert.False(t, cfg.FirstBoot.StartVM)
	assert.Equal(t, "/var/log/allinone.log", cfg.Logging.File)
	assert.True(t, cfg.Logging.LogToStderr(true))
	assert.Empty(t, cfg.Metrics.Textfile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantError string
	}{
		{
			name:      "malformed yaml",
			yaml:      "vm: [unterminated",
			wantError: "failed to parse YAML",
		},
		{
			name:      "bad vm name",
			yaml:      "vm:\n  name: -bad name\n",
			wantError: "vm.name",
		},
		{
			name:      "relative storage dir",
			yaml:      "paths:\n  storage_dir: images\n",
			wantError: "paths.storage_dir must be an absolute path",
		},
		{
			name:      "bridge name too long",
			yaml:      "network:\n  bridge: bridge-name-too-long\n",
			wantError: "network.bridge",
		},
		{
			name:      "negative timeout",
			yaml:      "libvirt:\n  connect_timeout: -1s\n",
			wantError: "libvirt.connect_timeout",
		},
		{
			name:      "unknown log level",
			yaml:      "logging:\n  level: chatty\n",
			wantError: "logging.level",
		},
		{
			name:      "empty companion program",
			yaml:      "services:\n  companion_check_command: [\"\", check]\n",
			wantError: "services.companion_check_command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromYAML([]byte(tt.yaml))
			require.Error(t, err)
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("expected error containing %q, got: %v", tt.wantError, err)
			}
		})
	}
}

func TestNormalize_TrimsInput(t *testing.T) {
	cfg := &Config{
		VM:      VMConfig{Name: "  allinone  "},
		Network: NetworkConfig{Bridge: " br0 "},
		Logging: LoggingConfig{Level: " WARN "},
	}
	cfg.Normalize()

	assert.Equal(t, "allinone", cfg.VM.Name)
	assert.Equal(t, "br0", cfg.Network.Bridge)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
