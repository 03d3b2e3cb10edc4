// Package vm manages the lifecycle of the single all-in-one VM.
//
// The hypervisor is the only source of truth: the controller holds no VM
// state of its own and looks the domain up by name before every mutation.
//
// States and transitions:
//
//	Undefined --Define--> Inactive --Start--> Active
//	Active --Stop--> Inactive
//
// Start also turns autostart on and Stop turns it off. The autostart toggle
// is secondary: its failure is reported through Outcome and does not undo
// the start or stop.
//
// Error Handling:
//
// Every failure is returned wrapped around one of the package's sentinel
// errors (ErrHypervisorConnect, ErrDefineFailed, ErrVMNotFound,
// ErrAlreadyActive, ErrLifecycleOp). Nothing is retried.
package vm
