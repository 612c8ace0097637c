package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) licenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Validate order numbers and manage trials",
	}
	cmd.AddCommand(c.licenseValidateCmd(), c.licenseTrialCmd(), c.licenseListCmd(), c.licenseRevokeCmd())
	return cmd
}

func (c *cli) licenseValidateCmd() *cobra.Command {
	var packID string
	cmd := &cobra.Command{
		Use:   "validate <order-number>",
		Short: "Validate an order number against the local store and the license server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := <-c.app.ValidateOrderAsync(cmd.Context(), args[0], packID)
			if res.Err != nil {
				return res.Err
			}
			v := res.Value
			if err := c.print(cmd.OutOrStdout(), v, func(w io.Writer) {
				if v.IsValid {
					fmt.Fprintf(w, "Valid %s license for %s\n", v.License.LicenseType, v.License.PackID)
					return
				}
				fmt.Fprintf(w, "Invalid: %s (%s)\n", v.Error, v.ErrorCode)
				if v.TrialAvailable {
					fmt.Fprintln(w, "A trial can be started with: tailorctl license trial <pack-id> --email <address>")
				}
			}); err != nil {
				return err
			}
			if !v.IsValid {
				return fmt.Errorf("order %s is not valid", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&packID, "pack", "", "pack the order should cover")
	return cmd
}

func (c *cli) licenseTrialCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "trial <pack-id>",
		Short: "Start a trial of an installed pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trial, err := c.app.StartTrial(cmd.Context(), args[0], email)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), trial, func(w io.Writer) {
				fmt.Fprintf(w, "Trial %s started for %s, expires %s\n",
					trial.OrderNumber, trial.PackID, trial.ExpiryDate.Format(time.DateOnly))
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "customer email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) licenseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored licenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			licenses := c.app.Licenses.List()
			return c.print(cmd.OutOrStdout(), licenses, func(w io.Writer) {
				now := time.Now()
				rows := make([][]any, 0, len(licenses))
				for _, l := range licenses {
					expiry := "never"
					if l.ExpiryDate != nil {
						expiry = l.ExpiryDate.Format(time.DateOnly)
					}
					rows = append(rows, []any{l.OrderNumber, l.PackID, l.LicenseType, expiry, l.IsActive(now)})
				}
				table(w, "ORDER\tPACK\tTYPE\tEXPIRES\tACTIVE", rows)
			})
		},
	}
}

func (c *cli) licenseRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <order-number>",
		Short: "Mark a stored license invalid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Licenses.Revoke(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", args[0])
			return nil
		},
	}
}
