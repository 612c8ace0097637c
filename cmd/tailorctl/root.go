package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wfassist/tailor/internal/app"
	"github.com/wfassist/tailor/internal/config"
)

// cli carries the state shared by every subcommand
type cli struct {
	dataDir string
	asJSON  bool
	verbose bool

	// load builds the configuration, replaced in tests
	load func() (*config.Config, error)
	// options are passed to app.New
	options app.Options

	app *app.App
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&cli{load: config.Load})
}

func newRootCmdWith(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "tailorctl",
		Short: "Manage Tailor Packs, licenses and the pack catalog",
		Long: `tailorctl operates on the same data directory as the Tailor pack service.

Examples:
  tailorctl list
  tailorctl import ./crm-1.2.0.zip --replace
  tailorctl enable crm
  tailorctl license trial crm --email owner@example.com`,
		SilenceUsage:      true,
		PersistentPreRunE: c.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "data directory (default: $DATA_DIR or ./data)")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(
		c.listCmd(),
		c.importCmd(),
		c.enableCmd(),
		c.disableCmd(),
		c.uninstallCmd(),
		c.statusCmd(),
		c.depsCmd(),
		c.exportCmd(),
		c.backupCmd(),
		c.restoreCmd(),
		c.capabilitiesCmd(),
		c.licenseCmd(),
		c.catalogCmd(),
		c.historyCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command, args []string) error {
	if c.verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := c.load()
	if err != nil {
		return err
	}
	if c.dataDir != "" {
		cfg.Storage.DataDir = c.dataDir
	}

	a, err := app.New(cfg, c.options)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	c.app = a
	return nil
}

func (c *cli) close(ctx context.Context) error {
	if c.app == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.app.Close(ctx)
	c.app = nil
	return err
}

// print writes v as JSON, or calls text to render it for humans
func (c *cli) print(w io.Writer, v any, text func(w io.Writer)) error {
	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func table(w io.Writer, header string, rows [][]any) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}
