package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/devfleet/devfleet/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with fleet configuration files",
	}
	cmd.AddCommand(newConfigLintCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func configPath(cmd *cobra.Command) string {
	path := "fleet.yaml"
	if flag := cmd.Flag("file"); flag != nil {
		if value := flag.Value.String(); value != "" {
			path = value
		}
	} else if inherited := cmd.InheritedFlags().Lookup("file"); inherited != nil {
		if value := inherited.Value.String(); value != "" {
			path = value
		}
	}
	return path
}

func newConfigLintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a fleet configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(configPath(cmd))
			return err
		},
	}
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved fleet configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			rendered, err := yaml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("render fleet: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(rendered))
			return nil
		},
	}
	return cmd
}
