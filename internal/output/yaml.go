package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/allinone/internal/vm"
)

// YAMLFormatter formats VM status as YAML.
type YAMLFormatter struct{}

// FormatVM formats the VM as a YAML document.
func (f *YAMLFormatter) FormatVM(info vm.Info) (string, error) {
	data, err := yaml.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to YAML: %w", err)
	}

	return string(data), nil
}
