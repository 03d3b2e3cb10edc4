package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/allinone/internal/vm"
)

// JSONFormatter formats VM status as JSON.
type JSONFormatter struct{}

// FormatVM formats the VM as an indented JSON object.
func (f *JSONFormatter) FormatVM(info vm.Info) (string, error) {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
