package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where allinone looks for its configuration file.
const DefaultPath = "/etc/allinone/config.yaml"

// Config represents the complete allinone configuration.
type Config struct {
	VM        VMConfig        `yaml:"vm"`
	Libvirt   LibvirtConfig   `yaml:"libvirt"`
	Paths     PathsConfig     `yaml:"paths"`
	Network   NetworkConfig   `yaml:"network"`
	Services  ServicesConfig  `yaml:"services"`
	FirstBoot FirstBootConfig `yaml:"first_boot"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// VMConfig identifies the single managed VM.
type VMConfig struct {
	Name string `yaml:"name"`
}

// LibvirtConfig holds the hypervisor connection settings.
type LibvirtConfig struct {
	SocketPath     string        `yaml:"socket_path"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// PathsConfig holds host filesystem locations.
type PathsConfig struct {
	// StorageDir is the directory holding VM images. Free disk is measured here.
	StorageDir string `yaml:"storage_dir"`
	// NetworkScriptsDir holds ifcfg-<name> interface files.
	NetworkScriptsDir string `yaml:"network_scripts_dir"`
	// AdminNetworkConfig is the astute.yaml naming the PXE interface.
	AdminNetworkConfig string `yaml:"admin_network_config"`
	// Proc is the proc filesystem mount point used for the memory probe.
	Proc string `yaml:"proc"`
}

// NetworkConfig controls the PXE interface migration.
type NetworkConfig struct {
	Bridge string `yaml:"bridge"`
}

// ServicesConfig names the host services restarted during first boot.
type ServicesConfig struct {
	// NetworkUnit is the systemd unit restarted after the bridge migration.
	NetworkUnit string `yaml:"network_unit"`
	// BridgeUpCommand is run when restarting NetworkUnit fails.
	BridgeUpCommand []string `yaml:"bridge_up_command"`
	// CompanionRestartCommand restarts the provisioning service (cobbler).
	CompanionRestartCommand []string `yaml:"companion_restart_command"`
	// CompanionCheckCommand must exit zero once the provisioning service is ready.
	CompanionCheckCommand []string `yaml:"companion_check_command"`
}

// FirstBootConfig holds first-boot policy.
type FirstBootConfig struct {
	// StartVM starts the VM after it is defined. The VM is left inactive by default.
	StartVM bool `yaml:"start_vm"`
}

// LoggingConfig controls the log sinks.
type LoggingConfig struct {
	File   string `yaml:"file"`
	Level  string `yaml:"level"`
	Stderr *bool  `yaml:"stderr,omitempty"` // Pointer to distinguish unset vs false
}

// MetricsConfig controls the run metrics export.
type MetricsConfig struct {
	// Textfile is written in Prometheus text format at the end of a run. Empty disables export.
	Textfile string `yaml:"textfile,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// VolumePath returns the path of the VM's qcow2 backing image.
// Format: <storage_dir>/<vm-name>.qcow2
func (c *Config) VolumePath() string {
	return filepath.Join(c.Paths.StorageDir, c.VM.Name+".qcow2")
}

// Normalize sanitizes user input and fills defaults.
// This is called automatically by LoadFromFile before validation.
func (c *Config) Normalize() {
	c.VM.Name = strings.TrimSpace(c.VM.Name)
	if c.VM.Name == "" {
		c.VM.Name = "allinone"
	}

	if c.Libvirt.SocketPath == "" {
		c.Libvirt.SocketPath = "/var/run/libvirt/libvirt-sock"
	}
	if c.Libvirt.ConnectTimeout == 0 {
		c.Libvirt.ConnectTimeout = 5 * time.Second
	}

	if c.Paths.StorageDir == "" {
		c.Paths.StorageDir = "/var/lib/libvirt/images"
	}
	if c.Paths.NetworkScriptsDir == "" {
		c.Paths.NetworkScriptsDir = "/etc/sysconfig/network-scripts"
	}
	if c.Paths.AdminNetworkConfig == "" {
		c.Paths.AdminNetworkConfig = "/etc/fuel/astute.yaml"
	}
	if c.Paths.Proc == "" {
		c.Paths.Proc = "/proc"
	}

	// Note: bridge names are NOT lowercased - they must match the host exactly
	c.Network.Bridge = strings.TrimSpace(c.Network.Bridge)
	if c.Network.Bridge == "" {
		c.Network.Bridge = "br0"
	}

	if c.Services.NetworkUnit == "" {
		c.Services.NetworkUnit = "network.service"
	}
	if len(c.Services.BridgeUpCommand) == 0 {
		c.Services.BridgeUpCommand = []string{"ifup", c.Network.Bridge}
	}
	if len(c.Services.CompanionRestartCommand) == 0 {
		c.Services.CompanionRestartCommand = []string{"dockerctl", "restart", "cobbler"}
	}
	if len(c.Services.CompanionCheckCommand) == 0 {
		c.Services.CompanionCheckCommand = []string{"dockerctl", "check", "cobbler"}
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "/var/log/allinone.log"
	}
}

// Validate checks the configuration for errors.
// Does not probe the host (sockets, files, services) - only config structure.
func (c *Config) Validate() error {
	// Pattern matches libvirt domain name requirements
	namePattern := `^[A-Za-z0-9][A-Za-z0-9_.-]*$`
	matched, err := regexp.MatchString(namePattern, c.VM.Name)
	if err != nil {
		return fmt.Errorf("vm.name validation error: %w", err)
	}
	if !matched {
		return fmt.Errorf("vm.name must start with an alphanumeric character and contain only alphanumerics, dots, hyphens, or underscores, got %q", c.VM.Name)
	}

	if c.Libvirt.ConnectTimeout < 0 {
		return fmt.Errorf("libvirt.connect_timeout must be >= 0, got %s", c.Libvirt.ConnectTimeout)
	}

	for key, path := range map[string]string{
		"paths.storage_dir":          c.Paths.StorageDir,
		"paths.network_scripts_dir":  c.Paths.NetworkScriptsDir,
		"paths.admin_network_config": c.Paths.AdminNetworkConfig,
		"libvirt.socket_path":        c.Libvirt.SocketPath,
	} {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("%s must be an absolute path, got %q", key, path)
		}
	}

	// Linux interface names are limited to 15 characters
	if len(c.Network.Bridge) > 15 || strings.ContainsAny(c.Network.Bridge, "/ \t") {
		return fmt.Errorf("network.bridge is not a valid interface name: %q", c.Network.Bridge)
	}

	if len(c.Services.CompanionRestartCommand) > 0 && c.Services.CompanionRestartCommand[0] == "" {
		return fmt.Errorf("services.companion_restart_command: program is required")
	}
	if len(c.Services.CompanionCheckCommand) > 0 && c.Services.CompanionCheckCommand[0] == "" {
		return fmt.Errorf("services.companion_check_command: program is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	return nil
}

// LogToStderr reports whether log lines should also go to stderr.
func (l LoggingConfig) LogToStderr(def bool) bool {
	if l.Stderr == nil {
		return def
	}
	return *l.Stderr
}

// LoadFromFile loads the configuration from a YAML file.
// A missing file is not an error: the defaults are returned instead.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromYAML(data)
}

// LoadFromYAML parses, normalizes, and validates configuration bytes.
func LoadFromYAML(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Normalize user input before validation
	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
