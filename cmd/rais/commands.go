package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/app"
	"raisloader/internal/jobs"
	"raisloader/internal/models"
	"raisloader/internal/services"

	"github.com/spf13/cobra"
)

const recentErrorCount = 3

var errRunUnsuccessful = errors.New("run finished without loading any file")

func newRootCommand(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "rais",
		Short: "Resumable loader for RAIS microdata",
		Long: `rais downloads the yearly RAIS archives from the public FTP listing,
extracts and translates them, and loads the result into the configured
analytical store. Every file's progress is checkpointed, so an interrupted
run resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCommand(stdout))
	root.AddCommand(newStatusCommand(stdout))
	root.AddCommand(newClearCommand(stdout))
	root.AddCommand(newWatchCommand())
	root.SetOut(stdout)
	return root
}

func newRunCommand(stdout io.Writer) *cobra.Command {
	var period string
	var reset bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a period, resuming saved progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.New("cli").Function("run")

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			if err := a.StartPipeline(ctx); err != nil {
				return err
			}

			if err := a.Services.Retry.Run(ctx, "ftp ping", a.Services.Listing.Ping); err != nil {
				return log.Err("remote listing unreachable", err)
			}

			if period == "" {
				period = a.Progress.CurrentPeriod()
			}
			if period == "" {
				if period, err = a.Services.Orchestration.LatestPeriod(ctx); err != nil {
					return err
				}
			}

			var summary services.RunSummary
			if reset {
				summary, err = a.Services.Orchestration.ResetAndStart(ctx, period)
			} else {
				summary, err = a.Services.Orchestration.Resume(ctx, period)
			}
			printSummary(stdout, summary)
			if err != nil {
				return err
			}
			if !summary.Success {
				return errRunUnsuccessful
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", "", "period directory to process (default: saved or latest)")
	cmd.Flags().BoolVar(&reset, "reset", false, "discard saved progress before running")
	return cmd
}

func newStatusCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show saved progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.New("cli").Function("status")

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			printReport(stdout, a.Progress.Location(), a.Progress.Report(), a.Progress.Failures(""))

			files, err := services.NewFileCleanupService(a.Config).ListStoredFiles(ctx)
			if err != nil {
				return err
			}
			if len(files) > 0 {
				fmt.Fprintf(stdout, "\nWork files on disk: %d\n", len(files))
				for _, file := range files {
					fmt.Fprintf(stdout, "  %s (%s MB)\n", file.Path, models.SizeMB(file.Size).String())
				}
			}
			return nil
		},
	}
}

func newClearCommand(stdout io.Writer) *cobra.Command {
	var files bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all saved progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.New("cli").Function("clear")

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			if err := a.Progress.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Progress cleared (%s)\n", a.Progress.Location())

			if files {
				if err := services.NewFileCleanupService(a.Config).CleanupAllFiles(ctx); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Work files removed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&files, "files", false, "also remove downloaded, extracted and transformed files")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check daily for the latest period and load it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.New("cli").Function("watch")

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			if err := a.StartPipeline(ctx); err != nil {
				return err
			}
			if err := a.StartScheduler(ctx); err != nil {
				return err
			}

			if now {
				if err := a.Services.Scheduler.RunJobByName(ctx, jobs.PeriodCheckJobName); err != nil {
					log.Warn("Immediate period check failed", "error", err)
				}
			}

			for job, next := range a.Services.Scheduler.NextRuns() {
				log.Info("Watching for new periods", "job", job, "nextRun", next.Format(time.RFC3339))
			}

			<-ctx.Done()
			log.Info("Shutting down watcher")
			return nil
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "run a period check immediately")
	return cmd
}

func closeApp(a *app.App, log logger.Logger) {
	if err := a.Close(); err != nil {
		log.Er("failed to close app", err)
	}
}

func printSummary(w io.Writer, s services.RunSummary) {
	fmt.Fprintf(w, "\nPeriod %s\n", s.Period)
	fmt.Fprintf(w, "  discovered:   %d\n", s.Discovered)
	fmt.Fprintf(w, "  transformed:  %d\n", s.Transformed)
	fmt.Fprintf(w, "  loaded:       %d\n", s.Loaded)
	fmt.Fprintf(w, "  errors:       %d\n", s.Errors)
	fmt.Fprintf(w, "  success rate: %s%%\n", s.SuccessRate().String())
	fmt.Fprintf(w, "  table rows:   %d\n", s.TableRows)
	fmt.Fprintf(w, "  duration:     %s\n", s.Duration.Round(time.Second))
	for _, failure := range s.Failures {
		fmt.Fprintf(w, "  ! %s [%s] %s\n", failure.Key.Filename, failure.Stage, snippet(failure.Message))
	}
}

func printReport(w io.Writer, location string, report services.ProgressReport, failures []services.FailedFile) {
	fmt.Fprintf(w, "Progress (%s)\n", location)
	fmt.Fprintf(w, "  session:     %s\n", report.SessionID)
	fmt.Fprintf(w, "  period:      %s\n", orDash(report.CurrentPeriod))
	if report.LastUpdate != nil {
		fmt.Fprintf(w, "  last update: %s\n", report.LastUpdate.Format(time.RFC3339))
	} else {
		fmt.Fprintf(w, "  last update: -\n")
	}
	fmt.Fprintf(w, "  files:       %d\n", report.TotalFiles)

	for _, stage := range models.StageOrder {
		if count := report.ByStage[string(stage)]; count > 0 {
			fmt.Fprintf(w, "    %-12s %d\n", stage, count)
		}
	}
	if count := report.ByStage["FAILED"]; count > 0 {
		fmt.Fprintf(w, "    %-12s %d\n", "FAILED", count)
	}

	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w, "  recent errors:")
	for i, failure := range failures {
		if i == recentErrorCount {
			break
		}
		fmt.Fprintf(w, "    %s [%s] %s\n", failure.Key, failure.Stage, snippet(failure.Message))
	}
}

func snippet(message string) string {
	runes := []rune(message)
	if len(runes) <= 80 {
		return message
	}
	return string(runes[:80]) + "..."
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
