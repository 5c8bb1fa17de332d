package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/report"
)

// errRunFailed makes the process exit non-zero when no file loaded.
var errRunFailed = errors.New("no file was loaded")

func newRunCmd(a *app) *cobra.Command {
	var (
		dryRun    bool
		asJSON    bool
		tolerance float64
	)

	cmd := &cobra.Command{
		Use:   "run PATH...",
		Short: "Load files and directories in one batch",
		Long: `Loads every supported file (.csv, .xlsx) found in the given paths.
Directories are scanned without recursion. Loaded files are moved to the
processed directory (SHEETLOAD_PROCESSED_DIR).

With --dry-run files are detected, read and validated but nothing is
written or moved, and no database is needed.

Press Ctrl-C to stop after the files in progress.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cmd.Flags().Changed("tolerance") {
				a.cfg.Ingest.Tolerance = tolerance
			}

			var (
				svc *core.Service
				err error
			)
			if dryRun {
				svc = a.offlineService()
			} else if svc, err = a.service(ctx); err != nil {
				return err
			}

			rep, err := svc.Run(ctx, args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
			} else {
				report.Run(out, rep)
			}

			if rep.Status() == "failed" {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without writing or moving files")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Percent of rows a validation issue may affect; overrides SHEETLOAD_TOLERANCE")
	return cmd
}
