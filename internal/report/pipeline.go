package report

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
)

// DefaultMaxRowsPerFile bounds the data rows of one detail part.
const DefaultMaxRowsPerFile = 700000

// Options tune the pipeline.
type Options struct {
	Zone           string
	MaxRowsPerFile int
	Encoding       string
}

func (o Options) withDefaults() Options {
	if o.Zone == "" {
		o.Zone = "North"
	}
	if o.MaxRowsPerFile <= 0 {
		o.MaxRowsPerFile = DefaultMaxRowsPerFile
	}
	return o
}

// Stats counts rows after every stage.
type Stats struct {
	Files         int
	Merged        int
	Filtered      int
	Deduped       int
	Detail        int
	Parts         int
	UnmatchedHubs int
}

// Result holds everything the job writes.
type Result struct {
	// Enriched is the deduplicated frame with every derived column.
	Enriched dataframe.DataFrame
	Detail   dataframe.DataFrame
	Parts    []dataframe.DataFrame
	Summary  *Summary
	Stats    Stats
}

// Process merges the reports at paths and runs the whole pipeline.
func Process(paths []string, matrix LevelLookup, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	df, stats, err := prepare(paths, opts)
	if err != nil {
		return nil, err
	}

	df = AddReasonLabel(df)
	if df.Err != nil {
		return nil, fmt.Errorf("classify reasons: %w", df.Err)
	}
	df, stats.UnmatchedHubs = Enrich(df, matrix)
	if df.Err != nil {
		return nil, fmt.Errorf("escalation lookup: %w", df.Err)
	}
	df = AddCategory(df)
	if df.Err != nil {
		return nil, fmt.Errorf("categorize: %w", df.Err)
	}

	summary := BuildSummary(df)

	detail := DetailRows(df)
	if detail.Err != nil {
		return nil, fmt.Errorf("select detail rows: %w", detail.Err)
	}
	stats.Detail = detail.Nrow()

	parts, err := Split(detail, opts.MaxRowsPerFile)
	if err != nil {
		return nil, err
	}
	stats.Parts = len(parts)

	return &Result{
		Enriched: df,
		Detail:   detail,
		Parts:    parts,
		Summary:  summary,
		Stats:    stats,
	}, nil
}

// Preview runs load, filter and dedupe only.
func Preview(paths []string, opts Options) (Stats, error) {
	_, stats, err := prepare(paths, opts.withDefaults())
	return stats, err
}

func prepare(paths []string, opts Options) (dataframe.DataFrame, Stats, error) {
	stats := Stats{Files: len(paths)}
	df, err := LoadReports(paths, opts.Encoding)
	if err != nil {
		return df, stats, err
	}
	stats.Merged = df.Nrow()
	if err := checkColumns(df, requiredColumns); err != nil {
		return df, stats, err
	}

	df = FilterRows(df, opts.Zone)
	if df.Err != nil {
		return df, stats, fmt.Errorf("filter rows: %w", df.Err)
	}
	stats.Filtered = df.Nrow()

	df = Dedupe(df, ColTrackingID)
	if df.Err != nil {
		return df, stats, fmt.Errorf("dedupe: %w", df.Err)
	}
	stats.Deduped = df.Nrow()
	return df, stats, nil
}
