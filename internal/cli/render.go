package cli

import (
	"github.com/spf13/cobra"

	"github.com/junbin-yang/statesurf/pkg/chart"
	"github.com/junbin-yang/statesurf/pkg/logger"
)

const (
	pFormat      = "format"
	pFormatShort = "f"
	pGuards      = "guards"
	pActions     = "actions"
)

func newRenderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "render (-i FILE | -b NAME) [--format mermaid|dot|plantuml|yaml]",
		Aliases: []string{"mermaid"},
		Short:   "Render a chart as a diagram or in another chart format",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, _, err := loadChart(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString(pFormat)

			var opts []chart.RenderOption
			if guards, _ := cmd.Flags().GetBool(pGuards); guards {
				opts = append(opts, chart.WithGuards())
			}
			if actions, _ := cmd.Flags().GetBool(pActions); actions {
				opts = append(opts, chart.WithActions())
			}

			data, err := chart.Render(d, format, opts...)
			if err != nil {
				return err
			}
			_, _ = cmd.OutOrStdout().Write(data)
			a.log.Debug("chart rendered", logger.String("format", format))
			return nil
		},
	}
	addChartFlags(cmd)
	f := cmd.Flags()
	f.StringP(pFormat, pFormatShort, "mermaid", "Output format: mermaid, dot, plantuml, yaml")
	f.Bool(pGuards, false, "Show guards on edge labels")
	f.Bool(pActions, false, "Show actions on edge labels")
	return cmd
}
