package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/junbin-yang/statesurf/pkg/logger"
)

const pLimit = "limit"

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage machine snapshots in the bolt store",
	}

	save := &cobra.Command{
		Use:   "save KEY (-i FILE | -b NAME) -e E1,E2",
		Short: "Run events and save the resulting state under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ParseSimParams(cmd)
			p.Save = args[0]
			p.Quiet = true
			return a.simulate(cmd, p)
		},
	}
	addChartFlags(save)
	addSimFlags(save)

	show := &cobra.Command{
		Use:   "show KEY",
		Short: "Print a snapshot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := st.Load(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshot keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			keys, err := st.List()
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history KEY",
		Short: "Print transitions recorded with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt(pLimit)
			st, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.History(args[0], limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s on %s\n", e.From, e.To, e.Event)
			}
			return nil
		},
	}
	history.Flags().Int(pLimit, 0, "Print only the last N transitions, 0 for all")

	del := &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a snapshot and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Delete(args[0]); err != nil {
				return err
			}
			a.log.Info("snapshot deleted", logger.String("key", args[0]))
			return nil
		},
	}

	for _, sub := range []*cobra.Command{save, show, list, history, del} {
		addStoreFlag(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}
