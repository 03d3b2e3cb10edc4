package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/allinone/internal/config"
	"github.com/jbweber/allinone/internal/libvirt"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Testing libvirt connection...")

		client, err := libvirt.ConnectWithContext(cmd.Context(), cfg.Libvirt.SocketPath, cfg.Libvirt.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		fmt.Fprintln(out, "✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		info, err := client.Info()
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "✓ Libvirt version: %s\n", info.Version)
		fmt.Fprintf(out, "✓ Hypervisor hostname: %s\n", info.Hostname)
		fmt.Fprintf(out, "✓ Connection URI: %s\n", info.URI)

		fmt.Fprintln(out, "\nConnection test successful!")
		return nil
	},
}
