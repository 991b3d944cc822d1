// Package compare aligns two summary CSVs on their (hub, L3, L2, L1) key and
// reports per reason count changes between them.
package compare

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"fdreport/internal/report"
)

// Key identifies a summary row.
type Key struct {
	Hub string `json:"hub_name"`
	L3  string `json:"l3"`
	L2  string `json:"l2"`
	L1  string `json:"l1"`
}

func keyOf(r report.SummaryRow) Key {
	return Key{Hub: r.Hub, L3: r.L3, L2: r.L2, L1: r.L1}
}

func (k Key) less(o Key) bool {
	a := [4]string{k.Hub, k.L3, k.L2, k.L1}
	b := [4]string{o.Hub, o.L3, o.L2, o.L1}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Change is a count that differs between the two summaries.
type Change struct {
	Key    Key    `json:"key"`
	Reason string `json:"reason"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// Delta returns After - Before.
func (c Change) Delta() int { return c.After - c.Before }

// Result is the outcome of Diff.
type Result struct {
	Status  string   `json:"status"` // "same" or "changed"
	Matched int      `json:"matched_rows"`
	Added   []Key    `json:"added"`
	Removed []Key    `json:"removed"`
	Changes []Change `json:"changes"`
	Totals  []Change `json:"totals"` // Key left empty
}

// LoadSummary reads a summary CSV written by the job.
func LoadSummary(path string) (*report.Summary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}
	keys := len(report.SummaryKeys)
	if len(headers) < keys || !equalFold(headers[:keys], report.SummaryKeys) {
		return nil, fmt.Errorf("%s is not a summary file: header %v", path, headers)
	}

	s := &report.Summary{Reasons: append([]string(nil), headers[keys:]...)}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		for len(rec) < len(headers) {
			rec = append(rec, "")
		}
		row := report.SummaryRow{Hub: rec[0], L3: rec[1], L2: rec[2], L1: rec[3], Counts: make([]int, len(s.Reasons))}
		for i := range s.Reasons {
			v := strings.TrimSpace(rec[keys+i])
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: count %q for %s: %w", path, line, v, s.Reasons[i], err)
			}
			row.Counts[i] = n
		}
		s.Rows = append(s.Rows, row)
	}
	return s, nil
}

// Diff aligns after against before by key. Reasons missing on one side count as zero.
// A key listed twice keeps its first row.
func Diff(before, after *report.Summary) Result {
	reasons := unionReasons(before.Reasons, after.Reasons)
	beforeIdx := index(before)
	afterIdx := index(after)

	var res Result
	totals := make(map[string]*Change, len(reasons))
	for _, reason := range reasons {
		totals[reason] = &Change{Reason: reason}
	}

	for k, br := range beforeIdx {
		ar, ok := afterIdx[k]
		if !ok {
			res.Removed = append(res.Removed, k)
		} else {
			res.Matched++
		}
		for _, reason := range reasons {
			b := count(before, br, reason)
			a := 0
			if ok {
				a = count(after, ar, reason)
			}
			totals[reason].Before += b
			totals[reason].After += a
			if ok && a != b {
				res.Changes = append(res.Changes, Change{Key: k, Reason: reason, Before: b, After: a})
			}
		}
	}
	for k, ar := range afterIdx {
		if _, ok := beforeIdx[k]; ok {
			continue
		}
		res.Added = append(res.Added, k)
		for _, reason := range reasons {
			totals[reason].After += count(after, ar, reason)
		}
	}

	sortKeys(res.Added)
	sortKeys(res.Removed)
	order := make(map[string]int, len(reasons))
	for i, r := range reasons {
		order[r] = i
	}
	sort.Slice(res.Changes, func(i, j int) bool {
		a, b := res.Changes[i], res.Changes[j]
		if a.Key != b.Key {
			return a.Key.less(b.Key)
		}
		return order[a.Reason] < order[b.Reason]
	})
	for _, reason := range reasons {
		res.Totals = append(res.Totals, *totals[reason])
	}

	res.Status = "same"
	if len(res.Added) > 0 || len(res.Removed) > 0 || len(res.Changes) > 0 {
		res.Status = "changed"
	}
	return res
}

func index(s *report.Summary) map[Key]report.SummaryRow {
	out := make(map[Key]report.SummaryRow, len(s.Rows))
	for _, r := range s.Rows {
		k := keyOf(r)
		if _, dup := out[k]; dup {
			continue
		}
		out[k] = r
	}
	return out
}

func count(s *report.Summary, row report.SummaryRow, reason string) int {
	for i, r := range s.Reasons {
		if r == reason && i < len(row.Counts) {
			return row.Counts[i]
		}
	}
	return 0
}

func unionReasons(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, r := range b {
		found := false
		for _, x := range out {
			if x == r {
				found = true
				break
			}
		}
		if !found {
			out = append(out, r)
		}
	}
	return out
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
}

func equalFold(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(strings.TrimSpace(a[i]), b[i]) {
			return false
		}
	}
	return true
}
