package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/allinone/internal/output"
	"github.com/jbweber/allinone/internal/vm"
)

var (
	outputFormat string
	noHeaders    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the VM's state",
	Long: `Show the managed VM's state, autostart flag and resources.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML document
  -o json   JSON object`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return &usageError{msg: err.Error()}
		}

		cfg, log, done, err := setup(configPath)
		if err != nil {
			return err
		}
		defer done()

		ctrl := vm.NewController(cfg.Libvirt.SocketPath, cfg.Libvirt.ConnectTimeout, log)
		info, err := ctrl.Describe(cmd.Context(), cfg.VM.Name)
		if err != nil {
			return fmt.Errorf("failed to get VM status: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatVM(info)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, yaml, json")
	statusCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit the table header")
}
