package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dentexa/import-cli/internal/parse"
	"github.com/dentexa/import-cli/internal/reconcile"
	"github.com/dentexa/import-cli/internal/report"
	"github.com/dentexa/import-cli/internal/store"
)

var (
	preflightFile     string
	preflightEncoding string
	preflightReport   string
)

var preflightCmd = &cobra.Command{
	Use:   "preflight <clients|patients>",
	Short: "Classify an import file without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		entity := store.Entity(args[0])
		if !entity.Valid() {
			return eris.Errorf("unknown entity %q, expected clients or patients", args[0])
		}

		st, err := openStore()
		if err != nil {
			return err
		}

		pre, rep, _, err := runPreflight(ctx, st, entity, preflightFile, preflightEncoding)
		if err != nil {
			return err
		}

		printSummary(cmd, rep.Summary)

		if preflightReport != "" {
			if err := writeReportFile(rep, preflightReport); err != nil {
				return err
			}
			cmd.Printf("report written to %s\n", preflightReport)
		}

		zap.L().Info("preflight complete",
			zap.String("entity", string(entity)),
			zap.String("file", preflightFile),
			zap.Int("total", pre.Total))
		return nil
	},
}

// runPreflight parses the file, snapshots the store, and classifies
// every row. Shared by the preflight and commit commands.
func runPreflight(ctx context.Context, st store.RecordStore, entity store.Entity, file, encoding string) (*reconcile.PreflightResult, *report.Report, reconcile.Policy, error) {
	if encoding == "" {
		encoding = cfg.Import.Encoding
	}
	rows, err := parse.ReadRows(file, parse.Options{Encoding: encoding})
	if err != nil {
		return nil, nil, nil, err
	}

	pol, snap, err := reconcile.Load(ctx, st, entity)
	if err != nil {
		return nil, nil, nil, err
	}

	pre := reconcile.Classify(rows, snap, pol)
	return pre, report.New(pre), pol, nil
}

func printSummary(cmd *cobra.Command, s report.Summary) {
	cmd.Printf("rows:               %d\n", s.Total)
	cmd.Printf("  to create:        %d\n", s.ToCreate)
	cmd.Printf("  to update:        %d\n", s.ToUpdate)
	cmd.Printf("  skipped:          %d\n", s.Skipped)
	cmd.Printf("    in-file dups:   %d\n", s.DuplicatesInFile)
	cmd.Printf("  invalid:          %d\n", s.Invalid)
	cmd.Printf("  conflicts:        %d\n", s.Conflicts)
}

func writeReportFile(rep *report.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create report %s", path)
	}
	if err := rep.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	preflightCmd.Flags().StringVar(&preflightFile, "file", "", "import file (CSV or XLSX)")
	preflightCmd.Flags().StringVar(&preflightEncoding, "encoding", "", "CSV charset, e.g. windows-1255 (default from config)")
	preflightCmd.Flags().StringVar(&preflightReport, "report", "", "write the full row report to this CSV path")
	_ = preflightCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(preflightCmd)
}
