package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/junbin-yang/statesurf/pkg/logger"
	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
)

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate (-i FILE | -b NAME)",
		Short: "Compile a chart and print its enumerations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, c, err := loadChart(cmd)
			if err != nil {
				return err
			}
			a.log.Info("chart valid", logger.String("chart", c.Name()), logger.Int("entries", c.Table().Len()))
			printSummary(cmd, d, c)
			return nil
		},
	}
	addChartFlags(cmd)
	return cmd
}

func printSummary(cmd *cobra.Command, d *sm.Definition, c *sm.Chart) {
	out := cmd.OutOrStdout()
	tree := c.Tree()

	fmt.Fprintf(out, "chart:         %s\n", c.Name())
	fmt.Fprintf(out, "states:        %d\n", len(d.States()))
	fmt.Fprintf(out, "initial:       %s\n", tree.InitialLeaf())
	fmt.Fprintf(out, "default event: %s\n", c.DefaultEvent())
	fmt.Fprintf(out, "events:        %s\n", join(c.Events()))
	fmt.Fprintf(out, "guards:        %s\n", join(d.Guards()))
	fmt.Fprintf(out, "actions:       %s\n", join(d.Actions()))
	fmt.Fprintf(out, "table entries: %d\n", c.Table().Len())

	fmt.Fprintln(out, "tree:")
	var walk func(s sm.State, depth int)
	walk = func(s sm.State, depth int) {
		mark := ""
		if n, ok := tree.Node(s); ok && n.Initial != "" {
			mark = " -> " + string(n.Initial)
		}
		fmt.Fprintf(out, "%s%s%s\n", strings.Repeat("  ", depth+1), s, mark)
		for _, child := range tree.Children(s) {
			walk(child, depth+1)
		}
	}
	for _, s := range tree.TopLevel() {
		if s == sm.FinalPseudoState {
			continue
		}
		walk(s, 0)
	}
}

func join[T ~string](items []T) string {
	if len(items) == 0 {
		return "-"
	}
	s := make([]string, len(items))
	for i, item := range items {
		s[i] = string(item)
	}
	return strings.Join(s, ", ")
}
