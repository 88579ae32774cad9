package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/relaxcheck/internal/config"
)

var flagInitForce bool

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <preset>",
		Short: "Write a config file from a built-in preset",
		Long: fmt.Sprintf(`Write the named preset to the --config path so it can be edited.
Available presets: %v.`, config.PresetNames()),
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.PresetNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Preset(args[0])
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfgFile); err == nil && !flagInitForce {
				return fmt.Errorf("%s already exists (use --force to replace it)", cfgFile)
			}
			if err := os.WriteFile(cfgFile, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", cfgFile, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s preset to %s\n", args[0], cfgFile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagInitForce, "force", false, "overwrite an existing config file")
	return cmd
}
