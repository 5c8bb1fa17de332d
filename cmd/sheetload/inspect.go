package main

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/report"
)

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect PATH...",
		Short: "Print the detected file type of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := a.offlineService()
			files, err := core.Scan(cmd.Context(), args)
			if err != nil && len(files) == 0 {
				return err
			}
			if err != nil {
				slog.Warn("some paths could not be scanned", "error", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, path := range files {
				name, ok, err := svc.DetectType(cmd.Context(), path)
				switch {
				case err != nil:
					fmt.Fprintf(tw, "%s\terror: %s\n", path, errs.Summary(err))
				case !ok:
					fmt.Fprintf(tw, "%s\t(no match)\n", path)
				default:
					fmt.Fprintf(tw, "%s\t%s\n", path, name)
				}
			}
			return tw.Flush()
		},
	}
}

func newPreviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preview PATH [TYPE]",
		Short: "Compare a file's header with a file type's columns",
		Long: `Shows how each header cell maps to the type's target columns, which
columns are missing and which are ignored. When TYPE is omitted the detected
type is used.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := a.offlineService()
			path := args[0]

			var typeName string
			if len(args) == 2 {
				typeName = args[1]
			} else {
				name, ok, err := svc.DetectType(cmd.Context(), path)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: no file type matches its header", path)
				}
				typeName = name
			}

			p, err := svc.PreviewColumns(cmd.Context(), path, typeName)
			if err != nil {
				return err
			}
			report.Preview(cmd.OutOrStdout(), path, p)
			return nil
		},
	}
}

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List configured file types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := a.settings().All()
			if err != nil {
				return err
			}
			if len(cfgs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no file types configured in %s\n", a.cfg.Ingest.SettingsPath)
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tSTRATEGY\tTABLE\tCOLUMNS\tKEYS")
			for _, c := range cfgs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.Name, c.Strategy(), c.Table(), len(c.Columns), strings.Join(c.Keys(), ","))
			}
			return tw.Flush()
		},
	}
}
