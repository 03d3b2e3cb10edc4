package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jbweber/allinone/internal/vm"
)

// TableFormatter formats VM status as a human-readable table.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVM formats the VM as a single table row.
func (f *TableFormatter) FormatVM(info vm.Info) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tAUTOSTART\tVCPUS\tMEMORY\tUUID")
	}

	// Undefined VMs have no resources to show
	vcpus, memory, id := "-", "-", "-"
	if info.UUID != "" {
		vcpus = fmt.Sprintf("%d", info.VCPUs)
		memory = formatMemory(info.MemoryMiB)
		id = info.UUID
	}

	autostart := "no"
	if info.Autostart {
		autostart = "yes"
	}

	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		info.Name, info.State, autostart, vcpus, memory, id)

	_ = w.Flush()
	return buf.String(), nil
}

// formatMemory prints whole GiB when possible, MiB otherwise.
func formatMemory(mib uint64) string {
	if mib >= 1024 && mib%1024 == 0 {
		return fmt.Sprintf("%d GiB", mib/1024)
	}
	return fmt.Sprintf("%d MiB", mib)
}
