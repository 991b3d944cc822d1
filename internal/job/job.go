// Package job runs the fake detection report end to end: discover and download
// the slot's CSVs, transform them, write the local artifacts, push the summary
// and record the run.
package job

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"fdreport/internal/config"
	"fdreport/internal/escalation"
	"fdreport/internal/fetch"
	"fdreport/internal/history"
	"fdreport/internal/output"
	"fdreport/internal/report"
	"fdreport/internal/sheets"
	"fdreport/internal/slot"
)

// Fetcher discovers the files of a slot.
type Fetcher interface {
	Fetch(ctx context.Context, s slot.Slot) (*fetch.Result, error)
}

// RunOptions are per invocation overrides.
type RunOptions struct {
	Date       string // YYYY-MM-DD or YYYY.MM.DD, requires Hour
	Hour       string
	SkipUpload bool
	KeepInputs bool
}

// Outcome describes a finished run.
type Outcome struct {
	RunID        string
	Slot         slot.Slot
	Files        int
	Downloaded   int
	NoReports    bool
	Stats        report.Stats
	Summary      *report.Summary
	SummaryPath  string
	WorkbookPath string
	PartPaths    []string
	Uploaded     bool
	UpdatedCells int64
	Deleted      int
}

// Runner wires the job's stages together.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	now      func() time.Time
	fetcher  Fetcher
	uploader sheets.Updater
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithFetcher replaces the HTTP downloader.
func WithFetcher(f Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithHTTPClient makes the default downloader use client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Runner) { r.fetcher = newDownloader(r.cfg, client, r.logger) }
}

// WithUploader replaces the Sheets API client.
func WithUploader(u sheets.Updater) Option {
	return func(r *Runner) { r.uploader = u }
}

// New validates cfg and builds a Runner.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{cfg: cfg, logger: logger, now: time.Now}
	r.fetcher = newDownloader(cfg, nil, logger)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func newDownloader(cfg *config.Config, client *http.Client, logger *zap.Logger) *fetch.Downloader {
	timeout, _ := cfg.FetchTimeout()
	return fetch.New(fetch.Options{
		BaseURL:           cfg.Fetch.BaseURL,
		Dir:               cfg.Fetch.DownloadDir,
		Timeout:           timeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		MaxFiles:          cfg.Fetch.MaxFiles,
		Client:            client,
	}, logger)
}

// Slot returns the slot a run started now would process.
func (r *Runner) Slot(opts RunOptions) (slot.Slot, error) {
	if opts.Date == "" && opts.Hour == "" {
		return slot.Resolve(r.now()), nil
	}
	if opts.Date == "" || opts.Hour == "" {
		return slot.Slot{}, fmt.Errorf("--date and --hour must be given together")
	}
	return slot.Parse(opts.Date, opts.Hour, r.now().Location())
}

// Fetch only discovers and downloads the slot's files.
func (r *Runner) Fetch(ctx context.Context, opts RunOptions) (*fetch.Result, error) {
	s, err := r.Slot(opts)
	if err != nil {
		return nil, err
	}
	return r.fetcher.Fetch(ctx, s)
}

// Preview fetches the slot and reports load, filter and dedupe counts. It writes
// no artifacts and keeps the downloaded files.
func (r *Runner) Preview(ctx context.Context, opts RunOptions) (*Outcome, error) {
	res, err := r.Fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Slot: res.Slot, Files: res.Count(), Downloaded: res.Downloaded()}
	if res.Count() == 0 {
		out.NoReports = true
		r.logger.Info("no report files", zap.Stringer("slot", res.Slot))
		return out, nil
	}
	out.Stats, err = report.Preview(res.Paths(), r.reportOptions())
	if report.IsNoReports(err) {
		out.NoReports = true
		r.logger.Info("no report files", zap.Stringer("slot", res.Slot), zap.Error(err))
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	r.logger.Info("Preview",
		zap.Int("merged", out.Stats.Merged),
		zap.Int("filtered", out.Stats.Filtered),
		zap.Int("deduped", out.Stats.Deduped))
	return out, nil
}

// Run executes the whole job once.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (out *Outcome, err error) {
	started := r.now()
	out = &Outcome{RunID: history.NewRunID()}
	logger := r.logger.With(zap.String("run_id", out.RunID))

	var result *report.Result
	defer func() {
		if herr := r.record(ctx, started, out, result, err); herr != nil {
			logger.Warn("failed to record run history", zap.Error(herr))
		}
	}()

	out.Slot, err = r.Slot(opts)
	if err != nil {
		return out, err
	}
	res, err := r.fetcher.Fetch(ctx, out.Slot)
	if err != nil {
		return out, fmt.Errorf("fetch reports: %w", err)
	}
	out.Files, out.Downloaded = res.Count(), res.Downloaded()
	if res.Count() == 0 {
		out.NoReports = true
		logger.Info("no report files", zap.Stringer("slot", out.Slot))
		return out, nil
	}

	matrix, err := escalation.Load(r.cfg.EscalationPath())
	if err != nil {
		return out, err
	}
	logger.Debug("Loaded escalation matrix", zap.Int("hubs", matrix.Len()))

	result, err = report.Process(res.Paths(), matrix, r.reportOptions())
	if report.IsNoReports(err) {
		out.NoReports = true
		logger.Info("no report files", zap.Stringer("slot", out.Slot), zap.Error(err))
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("process reports: %w", err)
	}
	summary := result.Summary
	out.Stats, out.Summary = result.Stats, summary
	if result.Stats.UnmatchedHubs > 0 {
		logger.Warn("Hubs missing from escalation matrix", zap.Int("rows", result.Stats.UnmatchedHubs))
	}

	dir := r.cfg.Fetch.DownloadDir
	out.SummaryPath = filepath.Join(dir, r.cfg.Report.SummaryFileName)
	if err := output.WriteSummaryCSV(out.SummaryPath, summary); err != nil {
		return out, err
	}
	logger.Info("Summary CSV file saved", zap.String("path", out.SummaryPath), zap.Int("rows", len(summary.Rows)))

	if r.cfg.Output.Workbook {
		out.WorkbookPath = strings.TrimSuffix(out.SummaryPath, filepath.Ext(out.SummaryPath)) + ".xlsx"
		if err := output.WriteSummaryWorkbook(out.WorkbookPath, summary); err != nil {
			return out, err
		}
		logger.Info("Summary workbook saved", zap.String("path", out.WorkbookPath))
	}

	out.PartPaths, err = output.WriteParts(dir, r.cfg.Report.PartFilePrefix, result.Parts)
	if err != nil {
		return out, err
	}
	for i, p := range out.PartPaths {
		logger.Info("Filtered CSV file saved", zap.String("path", p), zap.Int("rows", result.Parts[i].Nrow()))
	}

	if r.cfg.Cleanup.Inputs && !opts.KeepInputs {
		n, err := output.Remove(res.Paths(), logger)
		out.Deleted += n
		if err != nil {
			return out, err
		}
	}

	if !r.cfg.Sheets.Enabled || opts.SkipUpload {
		logger.Info("Skipping spreadsheet upload", zap.String("summary", out.SummaryPath))
		return out, nil
	}
	uploader, err := r.sheetsUploader(ctx, logger)
	if err != nil {
		return out, err
	}
	out.UpdatedCells, err = uploader.Update(ctx, r.cfg.Sheets.SpreadsheetID, r.cfg.Sheets.Range, summary.Values())
	if err != nil {
		return out, fmt.Errorf("upload summary: %w", err)
	}
	out.Uploaded = true

	if r.cfg.Cleanup.Summary {
		n, err := output.Remove([]string{out.SummaryPath}, logger)
		out.Deleted += n
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (r *Runner) reportOptions() report.Options {
	return report.Options{
		Zone:           r.cfg.Report.Zone,
		MaxRowsPerFile: r.cfg.Report.MaxRowsPerFile,
		Encoding:       r.cfg.Report.InputEncoding,
	}
}

func (r *Runner) sheetsUploader(ctx context.Context, logger *zap.Logger) (sheets.Updater, error) {
	if r.uploader != nil {
		return r.uploader, nil
	}
	u, err := sheets.NewUploader(ctx, r.cfg.Sheets.CredentialsFile, logger)
	if err != nil {
		return nil, err
	}
	r.uploader = u
	return u, nil
}

// record writes the run to the history ledger when one is configured.
func (r *Runner) record(ctx context.Context, started time.Time, out *Outcome, result *report.Result, runErr error) error {
	path := r.cfg.HistoryPath()
	if path == "" {
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	run := history.Run{
		ID:           out.RunID,
		SlotDate:     out.Slot.Date.Format("2006.01.02"),
		SlotHour:     out.Slot.Hour,
		StartedAt:    started,
		FinishedAt:   r.now(),
		UpdatedCells: out.UpdatedCells,
		Status:       history.StatusOK,
	}
	run.ApplyStats(out.Stats)
	run.Files = out.Files
	switch {
	case runErr != nil:
		run.Status = history.StatusFailed
		run.Error = runErr.Error()
	case out.NoReports:
		run.Status = history.StatusNoReports
	}

	// a cancelled run still gets its ledger row
	ctx = context.WithoutCancel(ctx)
	var summary *report.Summary
	if result != nil {
		summary = result.Summary
	}
	if err := store.Record(ctx, run, summary); err != nil {
		return err
	}
	if r.cfg.History.ExportDetail && result != nil && runErr == nil {
		if err := store.ExportDetail(ctx, out.RunID, result.Detail); err != nil {
			return fmt.Errorf("export detail rows: %w", err)
		}
	}
	return nil
}
