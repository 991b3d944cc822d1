// Package fetch discovers and downloads the numbered CSV files of a report slot.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fdreport/internal/slot"
)

// File is one report file of a slot.
type File struct {
	Number int
	Name   string
	Path   string
	Cached bool // already on disk, no request was made
	Bytes  int64
}

// Result lists the files found for a slot in probe order.
type Result struct {
	Slot  slot.Slot
	Files []File
}

// Count returns the number of files available for processing.
func (r *Result) Count() int { return len(r.Files) }

// Downloaded returns how many files were fetched over HTTP in this run.
func (r *Result) Downloaded() int {
	n := 0
	for _, f := range r.Files {
		if !f.Cached {
			n++
		}
	}
	return n
}

// Paths returns the local paths of all files.
func (r *Result) Paths() []string {
	out := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		out = append(out, f.Path)
	}
	return out
}

// Options configures a Downloader.
type Options struct {
	BaseURL           string
	Dir               string
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables pacing
	MaxFiles          int     // <= 0 probes until the first miss
	Client            *http.Client
}

// Downloader probes file numbers 1, 2, ... until the endpoint stops answering 200.
type Downloader struct {
	client   *http.Client
	baseURL  string
	dir      string
	limiter  *rate.Limiter
	maxFiles int
	logger   *zap.Logger
}

// New creates a Downloader.
func New(opts Options, logger *zap.Logger) *Downloader {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		client:   client,
		baseURL:  opts.BaseURL,
		dir:      opts.Dir,
		limiter:  rate.NewLimiter(limit, 1),
		maxFiles: opts.MaxFiles,
		logger:   logger,
	}
}

// Fetch collects every file of the slot. Files already present in the download
// directory are reused without a request. The first non-200 answer ends discovery;
// transport failures abort it.
func (d *Downloader) Fetch(ctx context.Context, s slot.Slot) (*Result, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	res := &Result{Slot: s}
	for n := 1; d.maxFiles <= 0 || n <= d.maxFiles; n++ {
		name := s.FileName(n)
		path := filepath.Join(d.dir, name)

		info, err := os.Stat(path)
		switch {
		case err == nil:
			d.logger.Info("File already exists", zap.String("file", name))
			res.Files = append(res.Files, File{Number: n, Name: name, Path: path, Cached: true, Bytes: info.Size()})
			continue
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		size, found, err := d.download(ctx, d.baseURL+name, path)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		d.logger.Info("Downloaded CSV file", zap.String("file", name), zap.Int64("bytes", size))
		res.Files = append(res.Files, File{Number: n, Name: name, Path: path, Bytes: size})
	}

	d.logger.Info("Total number of files downloaded",
		zap.Stringer("slot", s),
		zap.Int("files", res.Count()),
		zap.Int("fetched", res.Downloaded()))
	return res, nil
}

// download stores the body of url at path. found is false when the server
// answered anything but 200.
func (d *Downloader) download(ctx context.Context, url, path string) (size int64, found bool, err error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return 0, false, fmt.Errorf("rate limit wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		d.logger.Debug("Probe ended discovery", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return 0, false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return 0, false, fmt.Errorf("create temp file: %w", err)
	}
	size, err = io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, false, fmt.Errorf("download %s: %w", url, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, false, fmt.Errorf("move %s into place: %w", path, err)
	}
	return size, true, nil
}
