package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wfassist/tailor/internal/pack"
)

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			packs := c.app.Packs.List()
			return c.print(cmd.OutOrStdout(), packs, func(w io.Writer) {
				if len(packs) == 0 {
					fmt.Fprintln(w, "No packs installed")
					return
				}
				rows := make([][]any, 0, len(packs))
				for _, p := range packs {
					rows = append(rows, []any{p.PackID, p.Version, enabledLabel(p.Enabled), p.Name})
				}
				table(w, "PACK\tVERSION\tSTATE\tNAME", rows)
			})
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	var opts pack.ImportOptions
	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Install a pack from a ZIP archive",
		Long: `Install a pack from a ZIP archive with manifest.json at its root.

New packs are installed disabled. --replace upgrades an installed pack in place,
--avoid-collision installs a duplicate under a free pack id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := <-c.app.ImportPackAsync(cmd.Context(), args[0], opts)
			if res.Err != nil {
				return res.Err
			}
			info := res.Value.Info()
			return c.print(cmd.OutOrStdout(), info, func(w io.Writer) {
				fmt.Fprintf(w, "Installed %s %s (%s)\n", info.PackID, info.Version, enabledLabel(info.Enabled))
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "upgrade an installed pack in place")
	cmd.Flags().BoolVar(&opts.AvoidCollision, "avoid-collision", false, "install a duplicate under a free pack id")
	return cmd
}

func (c *cli) enableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <pack-id>",
		Short: "Enable a pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.EnablePack(cmd.Context(), args[0]); err != nil {
				return err
			}
			return c.printStatus(cmd.OutOrStdout(), args[0])
		},
	}
}

func (c *cli) disableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <pack-id>",
		Short: "Disable a pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.DisablePack(cmd.Context(), args[0]); err != nil {
				return err
			}
			return c.printStatus(cmd.OutOrStdout(), args[0])
		},
	}
}

func (c *cli) uninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <pack-id>",
		Aliases: []string{"rm"},
		Short:   "Remove an installed pack",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.UninstallPack(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <pack-id>",
		Short: "Show a pack's install, license and load state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printStatus(cmd.OutOrStdout(), args[0])
		},
	}
}

func (c *cli) printStatus(w io.Writer, packID string) error {
	status := c.app.GetPackStatus(packID)
	return c.print(w, status, func(w io.Writer) {
		if !status.Installed {
			fmt.Fprintf(w, "%s is not installed\n", packID)
			return
		}
		table(w, "PACK\tSTATE\tLOADED\tCAPABILITIES\tCOMPONENTS\tLICENSED", [][]any{{
			status.PackID, enabledLabel(status.Enabled), status.Loaded,
			status.CapabilitiesCount, status.ComponentsCount, status.HasValidLicense,
		}})
	})
}

func (c *cli) depsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <pack-id>",
		Short: "List what must be installed or enabled before a pack can run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := c.app.Packs.ResolveDependencies(args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), actions, func(w io.Writer) {
				if len(actions) == 0 {
					fmt.Fprintf(w, "All dependencies of %s are satisfied\n", args[0])
					return
				}
				rows := make([][]any, 0, len(actions))
				for _, a := range actions {
					rows = append(rows, []any{a.Action, a.PackID, a.RequiredBy})
				}
				table(w, "ACTION\tPACK\tREQUIRED BY", rows)
			})
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <pack-id>",
		Short: "Write an installed pack to a ZIP archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := output
			if dest == "" {
				dest = args[0] + ".zip"
			}
			info, err := c.app.Export(cmd.Context(), args[0], dest)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), info, func(w io.Writer) {
				fmt.Fprintf(w, "Exported %s %s to %s\n", info.PackID, info.Version, dest)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default: <pack-id>.zip)")
	return cmd
}

func (c *cli) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Back up every installed pack to one archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := <-c.app.BackupAsync(cmd.Context(), args[0])
			if res.Err != nil {
				return res.Err
			}
			return c.print(cmd.OutOrStdout(), res.Value, func(w io.Writer) {
				fmt.Fprintf(w, "Backed up %d packs to %s\n", len(res.Value.Packs), args[0])
			})
		},
	}
}

func (c *cli) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore packs from a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := <-c.app.RestoreAsync(cmd.Context(), args[0])
			if res.Err != nil {
				return res.Err
			}
			result := res.Value
			return c.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "Restored: %s\n", strings.Join(result.RestoredPacks, ", "))
				for _, f := range result.FailedPacks {
					fmt.Fprintf(w, "Failed: %s: %s\n", f.PackID, f.Error)
				}
			})
		},
	}
}

func (c *cli) capabilitiesCmd() *cobra.Command {
	var packID string
	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List capabilities registered by enabled packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, failures := c.app.LoadEnabled(cmd.Context()); len(failures) > 0 {
				for id, err := range failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s failed to load: %v\n", id, err)
				}
			}

			caps := c.app.Extensions.Capabilities().All()
			if packID != "" {
				caps = c.app.Extensions.Capabilities().ForPack(packID)
			}
			return c.print(cmd.OutOrStdout(), caps, func(w io.Writer) {
				rows := make([][]any, 0, len(caps))
				for _, cp := range caps {
					rows = append(rows, []any{cp.PackID, cp.CapabilityID, cp.Category, cp.Name})
				}
				table(w, "PACK\tCAPABILITY\tCATEGORY\tNAME", rows)
			})
		},
	}
	cmd.Flags().StringVar(&packID, "pack", "", "only this pack's capabilities")
	return cmd
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
