package network

import (
	"bytes"
	"path/filepath"
	"strings"
)

// IfcfgPath returns the network-scripts file for an interface.
// Format: <dir>/ifcfg-<name>
func IfcfgPath(dir, name string) string {
	return filepath.Join(dir, "ifcfg-"+name)
}

// BackupPath returns the backup location for an ifcfg file.
func BackupPath(path string) string {
	return path + ".orig"
}

// splitLines splits data into lines, each keeping its trailing newline.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	return strings.SplitAfter(string(data), "\n")
}

// ensureNewline terminates buf with a newline so an appended key lands on
// its own line.
func ensureNewline(buf *bytes.Buffer) {
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
}

// EnslaveToBridge rewrites a physical interface config for bridge membership:
// IPADDR and NETMASK lines are dropped and BRIDGE=<bridge> is appended.
// Every other line passes through unchanged.
func EnslaveToBridge(original []byte, bridge string) []byte {
	var buf bytes.Buffer
	for _, line := range splitLines(original) {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "IPADDR") || strings.HasPrefix(line, "NETMASK") {
			continue
		}
		buf.WriteString(line)
	}
	ensureNewline(&buf)
	buf.WriteString("BRIDGE=" + bridge + "\n")
	return buf.Bytes()
}

// BridgeFromInterface derives the bridge config from the original physical
// interface config. Every occurrence of iface becomes bridge, and on the
// device type line (any line mentioning "type", case-insensitively)
// Ethernet becomes Bridge. TYPE=Bridge is appended when no type line exists.
func BridgeFromInterface(original []byte, iface, bridge string) []byte {
	var (
		buf     bytes.Buffer
		hasType bool
	)
	for _, line := range splitLines(original) {
		if line == "" {
			continue
		}
		line = strings.ReplaceAll(line, iface, bridge)
		if strings.Contains(strings.ToLower(line), "type") {
			hasType = true
			line = strings.ReplaceAll(line, "Ethernet", "Bridge")
		}
		buf.WriteString(line)
	}
	if !hasType {
		ensureNewline(&buf)
		buf.WriteString("TYPE=Bridge\n")
	}
	return buf.Bytes()
}
