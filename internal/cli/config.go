package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/junbin-yang/statesurf/pkg/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show [--format yaml|json|ini]",
		Short: "Print the configuration after file and env overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString(pFormat)
			serializer, err := config.SerializerByName(format)
			if err != nil {
				return err
			}
			data, err := serializer.Marshal(&a.settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringP(pFormat, pFormatShort, "yaml", "Output format: yaml, json, ini")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the loaded config file, empty when defaults are used",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.cfg.Path())
		},
	}

	cmd.AddCommand(show, path)
	return cmd
}
