package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbweber/allinone/internal/config"
	"github.com/jbweber/allinone/internal/logging"
	"github.com/jbweber/allinone/internal/metrics"
	"github.com/jbweber/allinone/internal/provision"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	startVM    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "allinone-init",
	Short: "Provision the all-in-one VM on first boot",
	Long: `allinone-init prepares this host and defines the all-in-one VM.

It runs once, on the host's first boot:
- moves the PXE admin interface onto the br0 bridge
- restarts the network and the provisioning service
- sizes the VM at 60% of free disk, memory and CPUs
- creates the qcow2 image and defines the VM

The VM is left stopped unless --start-vm is given or first_boot.start_vm is
set in the configuration. Re-running on a provisioned host changes nothing.`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cmd.Flags().Changed("start-vm") {
			cfg.FirstBoot.StartVM = startVM
		}

		log, flush, err := logging.Init(logging.Options{
			Level:  cfg.Logging.Level,
			File:   cfg.Logging.File,
			Stderr: cfg.Logging.LogToStderr(true),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		defer func() {
			if err := flush(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}()

		recorder := metrics.NewRecorder(log)
		defer recorder.Flush(cfg.Metrics.Textfile)

		if err := provision.NewSequencer(cfg, recorder, log).FirstBoot(cmd.Context()); err != nil {
			return fmt.Errorf("first-boot provisioning failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "path to the configuration file")
	rootCmd.Flags().BoolVar(&startVM, "start-vm", false, "start the VM once it is defined")
}
