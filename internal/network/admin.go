package network

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	adminSectionKey   = "ADMIN_NETWORK"
	adminInterfaceKey = "interface"
)

// ErrAdminInterfaceMissing is returned when the admin config has no
// ADMIN_NETWORK.interface scalar.
var ErrAdminInterfaceMissing = errors.New("ADMIN_NETWORK.interface not found")

// ReadAdminInterface returns ADMIN_NETWORK.interface from the admin network
// config at path.
func ReadAdminInterface(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read admin network config: %w", err)
	}

	node, err := findAdminInterface(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	return node.Value, nil
}

// SetAdminInterface rewrites ADMIN_NETWORK.interface in place. Only the
// scalar's bytes change; comments, ordering, blank lines and the scalar's
// quoting style are kept.
func SetAdminInterface(path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read admin network config: %w", err)
	}

	patched, err := PatchAdminInterface(data, name)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if bytes.Equal(patched, data) {
		return nil
	}

	return writeFileAtomic(path, patched, 0644)
}

// PatchAdminInterface returns data with the ADMIN_NETWORK.interface value
// replaced by name. The result is parsed again to confirm the edit.
func PatchAdminInterface(data []byte, name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, "\n\r\"'#: ") {
		return nil, fmt.Errorf("invalid interface name %q", name)
	}

	node, err := findAdminInterface(data)
	if err != nil {
		return nil, err
	}

	start, end, err := scalarSpan(data, node)
	if err != nil {
		return nil, err
	}

	var replacement string
	switch node.Style {
	case yaml.DoubleQuotedStyle:
		replacement = `"` + name + `"`
	case yaml.SingleQuotedStyle:
		replacement = `'` + name + `'`
	default:
		replacement = name
	}

	patched := make([]byte, 0, len(data)-(end-start)+len(replacement))
	patched = append(patched, data[:start]...)
	patched = append(patched, replacement...)
	patched = append(patched, data[end:]...)

	check, err := findAdminInterface(patched)
	if err != nil {
		return nil, fmt.Errorf("patched config does not parse: %w", err)
	}
	if check.Value != name {
		return nil, fmt.Errorf("patched config reads back %q, expected %q", check.Value, name)
	}

	return patched, nil
}

func findAdminInterface(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrAdminInterfaceMissing
	}

	section := mappingValue(doc.Content[0], adminSectionKey)
	if section == nil {
		return nil, ErrAdminInterfaceMissing
	}
	value := mappingValue(section, adminInterfaceKey)
	if value == nil || value.Kind != yaml.ScalarNode || value.Value == "" {
		return nil, ErrAdminInterfaceMissing
	}

	return value, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// scalarSpan locates the raw bytes of a single-line scalar node.
// yaml.v3 reports 1-based lines and 1-based character columns.
func scalarSpan(data []byte, node *yaml.Node) (int, int, error) {
	if node.Line < 1 || node.Column < 1 {
		return 0, 0, fmt.Errorf("no position for %s.%s", adminSectionKey, adminInterfaceKey)
	}

	lineStart := 0
	for i := 1; i < node.Line; i++ {
		next := bytes.IndexByte(data[lineStart:], '\n')
		if next < 0 {
			return 0, 0, fmt.Errorf("line %d out of range", node.Line)
		}
		lineStart += next + 1
	}

	line := data[lineStart:]
	if nl := bytes.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}

	runes := []rune(string(line))
	if node.Column-1 > len(runes) {
		return 0, 0, fmt.Errorf("column %d out of range on line %d", node.Column, node.Line)
	}
	start := lineStart + len(string(runes[:node.Column-1]))

	var raw string
	switch node.Style {
	case yaml.DoubleQuotedStyle:
		raw = `"` + node.Value + `"`
	case yaml.SingleQuotedStyle:
		raw = `'` + node.Value + `'`
	case 0:
		raw = node.Value
	default:
		return 0, 0, fmt.Errorf("unsupported scalar style for %s.%s", adminSectionKey, adminInterfaceKey)
	}

	if !bytes.HasPrefix(data[start:], []byte(raw)) {
		return 0, 0, fmt.Errorf("%s.%s at line %d is not a simple scalar", adminSectionKey, adminInterfaceKey, node.Line)
	}

	return start, start + len(raw), nil
}
