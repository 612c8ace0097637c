package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfassist/tailor/internal/history"
	"github.com/wfassist/tailor/internal/pack"
)

func (c *cli) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse and install packs from the remote catalog",
	}

	var refresh bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List packs offered by the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fetch := c.app.Catalog.FetchIndex
			if refresh {
				fetch = c.app.Catalog.Refresh
			}
			index, err := fetch(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), index, func(w io.Writer) {
				rows := make([][]any, 0, len(index.Packs))
				for _, e := range index.Packs {
					rows = append(rows, []any{e.PackID, e.Version, e.LicenseRequired, e.Name})
				}
				table(w, "PACK\tVERSION\tLICENSED\tNAME", rows)
			})
		},
	}
	list.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached index")

	updates := &cobra.Command{
		Use:   "updates",
		Short: "List installed packs with a newer catalog version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := c.app.CheckUpdates(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), found, func(w io.Writer) {
				if len(found) == 0 {
					fmt.Fprintln(w, "All packs are up to date")
					return
				}
				rows := make([][]any, 0, len(found))
				for _, u := range found {
					rows = append(rows, []any{u.PackID, u.CurrentVersion, u.LatestVersion})
				}
				table(w, "PACK\tINSTALLED\tAVAILABLE", rows)
			})
		},
	}

	var version string
	var replace bool
	install := &cobra.Command{
		Use:   "install <pack-id>",
		Short: "Download and install a pack from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			installed, err := c.app.InstallFromCatalog(cmd.Context(), args[0], version, pack.ImportOptions{Replace: replace})
			if err != nil {
				return err
			}
			info := installed.Info()
			return c.print(cmd.OutOrStdout(), info, func(w io.Writer) {
				fmt.Fprintf(w, "Installed %s %s from the catalog\n", info.PackID, info.Version)
			})
		},
	}
	install.Flags().StringVar(&version, "version", "", "version to install (default: latest)")
	install.Flags().BoolVar(&replace, "replace", false, "upgrade an installed pack in place")

	cmd.AddCommand(list, updates, install)
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var filter history.Filter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show pack lifecycle events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := c.app.History.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), events, func(w io.Writer) {
				rows := make([][]any, 0, len(events))
				for _, e := range events {
					result := "ok"
					if !e.Success {
						result = "failed: " + e.Detail
					}
					rows = append(rows, []any{e.CreatedAt.Local().Format(time.DateTime), e.PackID, e.Action, e.Version, result})
				}
				table(w, "TIME\tPACK\tACTION\tVERSION\tRESULT", rows)
			})
		},
	}
	cmd.Flags().StringVar(&filter.PackID, "pack", "", "only this pack's events")
	cmd.Flags().StringVar(&filter.Action, "action", "", "only events with this action")
	cmd.Flags().IntVar(&filter.Limit, "limit", history.DefaultLimit, "maximum events to show")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := c.app.PruneHistory(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d events\n", removed)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "age of the oldest event to keep")

	cmd.AddCommand(prune)
	return cmd
}
