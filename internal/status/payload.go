// Package status renders the fixed JSON status payloads the operator CLI
// prints when a start or stop finishes.
//
// A payload is a one-key object mapping a numeric code to a message:
//
//	{"1000":"This operation was successful"}
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jbweber/allinone/internal/vm"
)

// Code identifies a payload.
type Code string

const (
	CodeSuccess        Code = "1000"
	CodeConnectFailed  Code = "1001"
	CodeVMNotFound     Code = "1002"
	CodeStartFailed    Code = "1003"
	CodeStopFailed     Code = "1004"
	CodeAlreadyRunning Code = "1005"
)

var messages = map[Code]string{
	CodeSuccess:        "This operation was successful",
	CodeConnectFailed:  "Sorry, libvirt failed to open a connection to the hypervisor software",
	CodeVMNotFound:     "The specified vm is not present",
	CodeStartFailed:    "libvirt failed to start vm",
	CodeStopFailed:     "libvirt failed to stop vm",
	CodeAlreadyRunning: "The vm is already running",
}

// Operation is the lifecycle operation a payload reports on.
type Operation int

const (
	OperationStart Operation = iota
	OperationStop
)

func (o Operation) String() string {
	switch o {
	case OperationStart:
		return "start"
	case OperationStop:
		return "stop"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Payload is one status response.
type Payload struct {
	Code    Code
	Message string
}

// New returns the payload for code with its fixed message.
func New(code Code) Payload {
	return Payload{Code: code, Message: messages[code]}
}

// Success returns the success payload.
func Success() Payload {
	return New(CodeSuccess)
}

// FromError maps a lifecycle error to its payload. The second result is
// false when err has no dedicated code.
func FromError(op Operation, err error) (Payload, bool) {
	switch {
	case err == nil:
		return Success(), true
	case errors.Is(err, vm.ErrHypervisorConnect):
		return New(CodeConnectFailed), true
	case errors.Is(err, vm.ErrVMNotFound):
		return New(CodeVMNotFound), true
	case errors.Is(err, vm.ErrAlreadyActive):
		return New(CodeAlreadyRunning), true
	case errors.Is(err, vm.ErrLifecycleOp) && op == OperationStart:
		return New(CodeStartFailed), true
	case errors.Is(err, vm.ErrLifecycleOp) && op == OperationStop:
		return New(CodeStopFailed), true
	default:
		return Payload{}, false
	}
}

// IsSuccess reports whether p is the success payload.
func (p Payload) IsSuccess() bool {
	return p.Code == CodeSuccess
}

// ExitCode is the process exit status that accompanies p.
func (p Payload) ExitCode() int {
	if p.IsSuccess() {
		return 0
	}
	return 1
}

// MarshalJSON encodes p as {"<code>":"<message>"}.
func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{string(p.Code): p.Message})
}

// Write prints p as a single JSON line.
func Write(w io.Writer, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal status payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write status payload: %w", err)
	}
	return nil
}
