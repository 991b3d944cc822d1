package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fdreport/internal/compare"
	"fdreport/internal/config"
	"fdreport/internal/history"
	"fdreport/internal/job"
	"fdreport/internal/slot"
)

func addSlotFlags(cmd *cobra.Command, opts *job.RunOptions) {
	cmd.Flags().StringVar(&opts.Date, "date", "", "report date (YYYY-MM-DD), overrides the clock; needs --hour")
	cmd.Flags().StringVar(&opts.Hour, "hour", "", fmt.Sprintf("report hour label, one of %v", slot.Hours()))
}

func (a *app) runner() (*job.Runner, error) {
	return job.New(a.cfg, a.logger)
}

func (a *app) runCmd() *cobra.Command {
	var opts job.RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole job for the current slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.runner()
			if err != nil {
				return err
			}
			out, err := r.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}
	addSlotFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.SkipUpload, "skip-upload", false, "do not push the summary to Google Sheets")
	cmd.Flags().BoolVar(&opts.KeepInputs, "keep-inputs", false, "keep the downloaded report CSVs")
	return cmd
}

func (a *app) fetchCmd() *cobra.Command {
	var opts job.RunOptions
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the slot's report files only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.runner()
			if err != nil {
				return err
			}
			res, err := r.Fetch(cmd.Context(), opts)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Slot: %s\n", res.Slot)
			for _, f := range res.Files {
				state := "downloaded"
				if f.Cached {
					state = "cached"
				}
				fmt.Fprintf(w, "  %-60s %-10s %s\n", f.Path, state, humanize.Bytes(uint64(f.Bytes)))
			}
			fmt.Fprintf(w, "Files: %d (%d downloaded)\n", res.Count(), res.Downloaded())
			return nil
		},
	}
	addSlotFlags(cmd, &opts)
	return cmd
}

func (a *app) previewCmd() *cobra.Command {
	var opts job.RunOptions
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Fetch the slot and print filter and dedupe counts without writing outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.runner()
			if err != nil {
				return err
			}
			out, err := r.Preview(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}
	addSlotFlags(cmd, &opts)
	return cmd
}

func (a *app) slotCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Print the report slot and first file name for now (or --at)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.ParseInLocation("2006-01-02 15:04", at, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --at %q, want \"YYYY-MM-DD HH:MM\"", at)
				}
				now = t
			}
			s := slot.Resolve(now)
			fmt.Fprintf(cmd.OutOrStdout(), "Slot: %s\nFirst file: %s%s\n", s, a.cfg.Fetch.BaseURL, s.FileName(1))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "local time \"YYYY-MM-DD HH:MM\" to resolve instead of now")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var (
		limit int
		hub   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the history ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.HistoryPath()
			if path == "" {
				return fmt.Errorf("history is disabled (history.enabled is false)")
			}
			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if hub == "" {
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			}
			return printHubCounts(cmd.Context(), cmd.OutOrStdout(), store, runs, hub)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to list")
	cmd.Flags().StringVar(&hub, "hub", "", "show the per reason counts of one hub in each listed run")
	return cmd
}

func (a *app) compareCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compare <before.csv> <after.csv>",
		Short: "Show per hub count changes between two summary CSVs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := compare.LoadSummary(args[0])
			if err != nil {
				return err
			}
			after, err := compare.LoadSummary(args[1])
			if err != nil {
				return err
			}
			res := compare.Diff(before, after)
			w := cmd.OutOrStdout()
			if asJSON {
				payload, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return fmt.Errorf("json encode: %w", err)
				}
				fmt.Fprintln(w, string(payload))
				return nil
			}
			printDiff(w, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the comparison as JSON")
	return cmd
}

func printDiff(w io.Writer, res compare.Result) {
	fmt.Fprintf(w, "Status: %s\n", res.Status)
	fmt.Fprintf(w, "Matched hubs: %d, added: %d, removed: %d\n", res.Matched, len(res.Added), len(res.Removed))
	for _, k := range res.Added {
		fmt.Fprintf(w, "  + %s (%s / %s / %s)\n", k.Hub, k.L3, k.L2, k.L1)
	}
	for _, k := range res.Removed {
		fmt.Fprintf(w, "  - %s (%s / %s / %s)\n", k.Hub, k.L3, k.L2, k.L1)
	}
	for _, c := range res.Changes {
		fmt.Fprintf(w, "  %s %s: %d -> %d (%+d)\n", c.Key.Hub, c.Reason, c.Before, c.After, c.Delta())
	}
	fmt.Fprintln(w, "Totals:")
	for _, c := range res.Totals {
		fmt.Fprintf(w, "  %-20s %9s -> %s\n", c.Reason, humanize.Comma(int64(c.Before)), humanize.Comma(int64(c.After)))
	}
}

func printOutcome(w io.Writer, out *job.Outcome) {
	fmt.Fprintf(w, "Slot: %s\n", out.Slot)
	if out.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", out.RunID)
	}
	fmt.Fprintf(w, "Files: %d (%d downloaded)\n", out.Files, out.Downloaded)
	if out.NoReports {
		fmt.Fprintln(w, "No report files for this slot")
		return
	}
	fmt.Fprintf(w, "Rows merged: %s\n", humanize.Comma(int64(out.Stats.Merged)))
	fmt.Fprintf(w, "Rows after filter: %s\n", humanize.Comma(int64(out.Stats.Filtered)))
	fmt.Fprintf(w, "Rows after dedupe: %s\n", humanize.Comma(int64(out.Stats.Deduped)))
	if out.RunID == "" {
		return
	}
	fmt.Fprintf(w, "Detail rows: %s in %d part(s)\n", humanize.Comma(int64(out.Stats.Detail)), out.Stats.Parts)
	if out.Summary != nil {
		fmt.Fprintln(w, "Reason totals:")
		for _, reason := range out.Summary.Reasons {
			fmt.Fprintf(w, "  %-20s %9s\n", reason, humanize.Comma(int64(out.Summary.Total(reason))))
		}
	}
	if out.Stats.UnmatchedHubs > 0 {
		fmt.Fprintf(w, "Rows without escalation contacts: %s\n", humanize.Comma(int64(out.Stats.UnmatchedHubs)))
	}
	if out.SummaryPath != "" && !out.Uploaded {
		fmt.Fprintf(w, "Summary: %s\n", out.SummaryPath)
	}
	if out.WorkbookPath != "" {
		fmt.Fprintf(w, "Workbook: %s\n", out.WorkbookPath)
	}
	for _, p := range out.PartPaths {
		fmt.Fprintf(w, "Part: %s\n", p)
	}
	if out.Uploaded {
		fmt.Fprintf(w, "Cells updated: %s\n", humanize.Comma(out.UpdatedCells))
	}
}

func printHubCounts(ctx context.Context, w io.Writer, store *history.Store, runs []history.Run, hub string) error {
	for _, r := range runs {
		counts, err := store.SummaryCounts(ctx, r.ID, hub)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  %s %s  %s\n", r.ID, r.SlotDate, r.SlotHour, r.Status)
		if len(counts) == 0 {
			fmt.Fprintf(w, "  no rows for %s\n", hub)
			continue
		}
		reasons := make([]string, 0, len(counts))
		for reason := range counts {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "  %-20s %9s\n", reason, humanize.Comma(int64(counts[reason])))
		}
	}
	return nil
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	fmt.Fprintf(w, "%-36s  %-16s  %-10s  %5s  %9s  %9s  %s\n", "RUN", "SLOT", "STATUS", "FILES", "DEDUPED", "DETAIL", "STARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-16s  %-10s  %5d  %9s  %9s  %s\n",
			r.ID, r.SlotDate+" "+r.SlotHour, r.Status, r.Files,
			humanize.Comma(int64(r.DedupedRows)), humanize.Comma(int64(r.DetailRows)),
			humanize.Time(r.StartedAt))
		if r.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", r.Error)
		}
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", a.configPath)
			}
			if err := config.DefaultConfig().Save(a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", a.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
