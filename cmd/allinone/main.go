package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/allinone/internal/config"
	"github.com/jbweber/allinone/internal/logging"
	"github.com/jbweber/allinone/internal/metrics"
	"github.com/jbweber/allinone/internal/provision"
	"github.com/jbweber/allinone/internal/status"
	"github.com/jbweber/allinone/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// usageError marks command-line mistakes, which exit with exitUsage.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

var (
	configPath string
	startVM    bool
	stopVM     bool
)

// exitCode is set by commands that report through a status payload.
var exitCode = exitOK

func main() {
	os.Exit(execute())
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) {
			return exitUsage
		}
		return exitError
	}
	return exitCode
}

var rootCmd = &cobra.Command{
	Use:   "allinone (--start-vm | --stop-vm)",
	Short: "Start or stop the all-in-one VM",
	Long: `allinone starts or stops the single VM provisioned on this host.

Starting the VM also marks it to start with the host. Stopping it is a hard
power-off and clears the autostart flag. The result is printed to stdout as a
JSON status payload:

  {"1000":"This operation was successful"}`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := selectOperation(startVM, stopVM)
		if err != nil {
			_ = cmd.Usage()
			return err
		}

		cfg, log, done, err := setup(configPath)
		if err != nil {
			return err
		}
		defer done()

		recorder := metrics.NewRecorder(log)
		defer recorder.Flush(cfg.Metrics.Textfile)

		seq := provision.NewSequencer(cfg, recorder, log)
		exitCode = runLifecycle(cmd.Context(), op, seq, cmd.OutOrStdout(), log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the configuration file")
	rootCmd.Flags().BoolVar(&startVM, "start-vm", false, "start the VM and enable autostart")
	rootCmd.Flags().BoolVar(&stopVM, "stop-vm", false, "power off the VM and disable autostart")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(testConnCmd)
}

func selectOperation(start, stop bool) (status.Operation, error) {
	switch {
	case start && stop:
		return 0, &usageError{msg: "--start-vm and --stop-vm cannot be used together"}
	case start:
		return status.OperationStart, nil
	case stop:
		return status.OperationStop, nil
	default:
		return 0, &usageError{msg: "you must specify an operation, either --start-vm or --stop-vm"}
	}
}

// lifecycle is the part of the sequencer the operator CLI drives.
type lifecycle interface {
	StartVM(ctx context.Context) (vm.Outcome, error)
	StopVM(ctx context.Context) (vm.Outcome, error)
}

// runLifecycle performs op, prints the status payload to out and returns the
// exit code. Errors without a payload code are reported on stderr.
func runLifecycle(ctx context.Context, op status.Operation, lc lifecycle, out io.Writer, log logrus.FieldLogger) int {
	var err error
	switch op {
	case status.OperationStart:
		_, err = lc.StartVM(ctx)
	case status.OperationStop:
		_, err = lc.StopVM(ctx)
	}

	payload, ok := status.FromError(op, err)
	if !ok {
		log.WithError(err).WithField("operation", op).Error("VM operation failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	log.WithFields(logrus.Fields{
		"operation": op,
		"code":      payload.Code,
	}).Info(payload.Message)

	if err := status.Write(out, payload); err != nil {
		log.WithError(err).Error("Failed to print status")
		return exitError
	}
	return payload.ExitCode()
}

// setup loads the configuration and opens the log. The operator CLI logs to
// the log file only unless the configuration asks for stderr.
func setup(path string) (*config.Config, *logrus.Logger, func(), error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, flush, err := logging.Init(logging.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Stderr: cfg.Logging.LogToStderr(false),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	done := func() {
		if err := flush(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return cfg, log, done, nil
}
