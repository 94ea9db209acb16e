package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/outpost-dev/launchcore/internal/config"
)

func newConfigCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect or materialize launchcore's settings",
	}
	c.AddCommand(newConfigInitCmd())
	return c
}

func newConfigInitCmd() *cobra.Command {
	var out string
	c := &cobra.Command{
		Use:   "init",
		Short: "Write the effective (defaults-plus-overrides) settings to a launchcore.yaml",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runConfigInit(out)
		},
	}
	c.Flags().StringVar(&out, "out", "launchcore.yaml", "path to write")
	return c
}

func runConfigInit(out string) error {
	cfg, err := loadConfig()
	if err != nil {
		return &UsageError{Err: err}
	}
	path, err := filepath.Abs(out)
	if err != nil {
		path = out
	}
	if _, err := os.Stat(path); err == nil {
		return &UsageError{Err: fmt.Errorf("%s already exists; remove it first", path)}
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
