package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/objmodel/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return writeJSON(a.out, a.cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := "objmodel.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := writeDefaultConfig(path); err != nil {
				return err
			}
			_, err := fmt.Fprintln(a.out, "wrote", path)
			return err
		},
	})
	return cmd
}

// writeDefaultConfig creates path holding the default configuration. An
// existing file is left alone.
func writeDefaultConfig(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(config.DefaultYAML), 0o644)
}
