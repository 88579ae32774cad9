package cmd

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/execution"
	"github.com/signalnine/relaxcheck/internal/result"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and that both programs can be found",
		Long: `Load and validate the configuration, then resolve the baseline and
candidate executables the way "run" would. Container runs are not checked
locally since the programs live inside the image.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cells := cfg.Sweep.Cells()
			fmt.Fprintf(out, "Config OK: %d cells x %d trials, protocol %s, report %s (%s)\n",
				len(cells), cfg.Sweep.Trials, cfg.Protocol.Name, cfg.Report.Path, cfg.Report.Mode)

			if cfg.Execution.Container.Image != "" {
				fmt.Fprintf(out, "Programs run in container image %s; skipping local lookup\n", cfg.Execution.Container.Image)
				return nil
			}
			for _, p := range []struct {
				role result.Role
				prog config.Program
			}{
				{result.RoleBaseline, cfg.Baseline},
				{result.RoleCandidate, cfg.Candidate},
			} {
				req := execution.NewRequest(p.prog, cells[0], p.role)
				path, err := lookPath(req)
				if err != nil {
					return fmt.Errorf("%s: %w", p.role, err)
				}
				fmt.Fprintf(out, "  %-9s %s\n", p.role+":", path)
			}
			return nil
		},
	}
}

// lookPath resolves a request's executable relative to its working
// directory, mirroring how os/exec resolves it at run time.
func lookPath(req *execution.Request) (string, error) {
	path := req.Path
	if req.Dir != "" && !filepath.IsAbs(path) && filepath.Base(path) != path {
		path = filepath.Join(req.Dir, path)
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("executable %q not found: %w", req.Path, err)
	}
	return resolved, nil
}
