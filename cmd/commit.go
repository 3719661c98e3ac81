package main

import (
	"bufio"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dentexa/import-cli/internal/commit"
	"github.com/dentexa/import-cli/internal/history"
	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/store"
)

var (
	commitFile      string
	commitEncoding  string
	commitReport    string
	commitOverrides string
	commitYes       bool
)

var commitCmd = &cobra.Command{
	Use:   "commit <clients|patients>",
	Short: "Reconcile an import file and write the approved operations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		entity := store.Entity(args[0])
		if !entity.Valid() {
			return eris.Errorf("unknown entity %q, expected clients or patients", args[0])
		}

		st, err := openStore()
		if err != nil {
			return err
		}

		pre, rep, pol, err := runPreflight(ctx, st, entity, commitFile, commitEncoding)
		if err != nil {
			return err
		}
		printSummary(cmd, rep.Summary)

		if commitReport != "" {
			if err := writeReportFile(rep, commitReport); err != nil {
				return err
			}
		}

		sel, err := loadOverrides(commitOverrides)
		if err != nil {
			return err
		}
		if !sel.Empty() {
			cmd.Printf("overrides: %d invalid, %d conflicts, %d skipped\n",
				len(sel.Invalid), len(sel.Conflicts), len(sel.Skipped))
		}

		updates, creates := commit.Plan(pre, sel, pol)
		if len(updates)+len(creates) == 0 {
			cmd.Println("nothing to commit")
			return nil
		}

		if !commitYes && !confirm(cmd, len(updates), len(creates)) {
			cmd.Println("aborted")
			return nil
		}

		hist, err := openHistory(ctx)
		if err != nil {
			return err
		}
		defer hist.Close() //nolint:errcheck

		run := &history.Run{
			ID:       uuid.NewString(),
			Entity:   string(entity),
			File:     commitFile,
			Total:    pre.Total,
			ToCreate: len(creates),
			ToUpdate: len(updates),
			Skipped:  rep.Summary.Skipped,
		}
		if err := hist.CreateRun(ctx, run); err != nil {
			return err
		}

		eng := commit.NewEngine(st, entity, cfg.Commit.EngineConfig())
		done := make(chan struct{})
		go logProgress(eng, done)

		res := eng.Run(ctx, updates, creates)
		close(done)

		outcome := history.Outcome{
			Created: res.Created,
			Updated: res.Updated,
			Failed:  len(res.Failures),
			Status:  runStatus(res),
		}
		if err := hist.FinishRun(ctx, run.ID, outcome); err != nil {
			zap.L().Warn("record run outcome", zap.Error(err))
		}

		cmd.Printf("created: %d, updated: %d, failed: %d\n", res.Created, res.Updated, len(res.Failures))
		for _, f := range res.Failures {
			cmd.Printf("  row %d (%s): %s\n", f.Index, f.Phase, f.Error)
		}
		if res.Cancelled {
			cmd.Println("commit cancelled; completed operations were kept")
		}
		return nil
	},
}

// loadOverrides reads the operator's override selection from a YAML file.
func loadOverrides(path string) (model.OverrideSelection, error) {
	var sel model.OverrideSelection
	if path == "" {
		return sel, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return sel, eris.Wrapf(err, "read overrides %s", path)
	}
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return sel, eris.Wrapf(err, "parse overrides %s", path)
	}
	return sel, nil
}

func confirm(cmd *cobra.Command, updates, creates int) bool {
	cmd.Printf("commit %d updates and %d creates? [y/N] ", updates, creates)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func logProgress(eng *commit.Engine, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			completed, total := eng.Progress()
			zap.L().Info("commit progress", zap.Int("completed", completed), zap.Int("total", total))
		}
	}
}

func runStatus(res commit.Result) history.Status {
	switch {
	case res.Cancelled:
		return history.StatusCancelled
	case len(res.Failures) > 0:
		return history.StatusPartial
	default:
		return history.StatusComplete
	}
}

func init() {
	commitCmd.Flags().StringVar(&commitFile, "file", "", "import file (CSV or XLSX)")
	commitCmd.Flags().StringVar(&commitEncoding, "encoding", "", "CSV charset, e.g. windows-1255 (default from config)")
	commitCmd.Flags().StringVar(&commitReport, "report", "", "write the full row report to this CSV path")
	commitCmd.Flags().StringVar(&commitOverrides, "overrides", "", "YAML file listing row indices to commit despite exclusion")
	commitCmd.Flags().BoolVar(&commitYes, "yes", false, "skip the confirmation prompt")
	_ = commitCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(commitCmd)
}
