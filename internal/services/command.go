package services

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner runs argv to completion and returns its combined output.
// A non-nil error means the command did not exit zero.
type Runner func(ctx context.Context, argv []string) ([]byte, error)

// ExecRunner runs argv on the host.
func ExecRunner(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty command")
	}

	output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w\nOutput: %s", strings.Join(argv, " "), err, strings.TrimSpace(string(output)))
	}

	return output, nil
}
