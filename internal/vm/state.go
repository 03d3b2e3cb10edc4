package vm

import "fmt"

// State is the hypervisor's view of the managed VM.
type State int

const (
	// StateUndefined means no domain with the name exists.
	StateUndefined State = iota
	// StateInactive means the domain is defined but not running.
	StateInactive
	// StateActive means the domain is running.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUndefined:
		return "undefined"
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}
