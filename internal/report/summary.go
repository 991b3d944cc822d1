package report

import (
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
)

// SummaryRow is one (hub, L3, L2, L1) group with a count per reason.
type SummaryRow struct {
	Hub    string
	L3     string
	L2     string
	L1     string
	Counts []int
}

// Key returns the group key in column order.
func (r SummaryRow) Key() []string {
	return []string{r.Hub, r.L3, r.L2, r.L1}
}

// Summary is the per hub reason pivot.
type Summary struct {
	Reasons []string
	Rows    []SummaryRow
}

// Header returns the column names of the summary table.
func (s *Summary) Header() []string {
	h := make([]string, 0, len(SummaryKeys)+len(s.Reasons))
	h = append(h, SummaryKeys...)
	return append(h, s.Reasons...)
}

// Records renders every row as strings, without the header.
func (s *Summary) Records() [][]string {
	out := make([][]string, len(s.Rows))
	for i, r := range s.Rows {
		rec := r.Key()
		for _, c := range r.Counts {
			rec = append(rec, strconv.Itoa(c))
		}
		out[i] = rec
	}
	return out
}

// Values renders every row for the spreadsheet API: keys as strings, counts as ints.
func (s *Summary) Values() [][]interface{} {
	out := make([][]interface{}, len(s.Rows))
	for i, r := range s.Rows {
		row := make([]interface{}, 0, 4+len(r.Counts))
		row = append(row, r.Hub, r.L3, r.L2, r.L1)
		for _, c := range r.Counts {
			row = append(row, c)
		}
		out[i] = row
	}
	return out
}

// Total sums every count of reason.
func (s *Summary) Total(reason string) int {
	idx := -1
	for i, r := range s.Reasons {
		if r == reason {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0
	}
	total := 0
	for _, r := range s.Rows {
		total += r.Counts[idx]
	}
	return total
}

// BuildSummary groups df by hub and escalation levels and counts the reason
// labels listed in SummaryReasons. Rows with any empty key are skipped.
func BuildSummary(df dataframe.DataFrame) *Summary {
	hubs := values(df, ColHub)
	l3 := values(df, ColL3)
	l2 := values(df, ColL2)
	l1 := values(df, ColL1)
	labels := values(df, ColReasonLabel)

	pos := make(map[string]int, len(SummaryReasons))
	for i, r := range SummaryReasons {
		pos[r] = i
	}

	type key [4]string
	groups := map[key]*SummaryRow{}
	for i := range hubs {
		k := key{hubs[i], l3[i], l2[i], l1[i]}
		if k[0] == "" || k[1] == "" || k[2] == "" || k[3] == "" {
			continue
		}
		g, ok := groups[k]
		if !ok {
			g = &SummaryRow{Hub: k[0], L3: k[1], L2: k[2], L1: k[3], Counts: make([]int, len(SummaryReasons))}
			groups[k] = g
		}
		if p, ok := pos[labels[i]]; ok {
			g.Counts[p]++
		}
	}

	s := &Summary{Reasons: append([]string(nil), SummaryReasons...), Rows: make([]SummaryRow, 0, len(groups))}
	for _, g := range groups {
		s.Rows = append(s.Rows, *g)
	}
	sort.Slice(s.Rows, func(i, j int) bool {
		a, b := s.Rows[i].Key(), s.Rows[j].Key()
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return s
}
