package report

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"fdreport/internal/escalation"
)

// LevelLookup resolves the escalation levels of a hub.
type LevelLookup interface {
	Lookup(hub string) (escalation.Levels, bool)
}

// FilterRows keeps rows of the given zone whose hub is not a Myntra hub and
// whose detection reason is not a spoof.
func FilterRows(df dataframe.DataFrame, zone string) dataframe.DataFrame {
	return df.
		Filter(dataframe.F{Colname: ColZone, Comparator: series.CompFunc, Comparando: equals(zone)}).
		Filter(dataframe.F{Colname: ColHub, Comparator: series.CompFunc, Comparando: lacksFold(excludedHubFragment)}).
		Filter(dataframe.F{Colname: ColReason, Comparator: series.CompFunc, Comparando: lacksFold(excludedReasonToken)})
}

func equals(want string) func(series.Element) bool {
	return func(el series.Element) bool {
		return !el.IsNA() && el.String() == want
	}
}

// lacksFold matches cells that do not contain sub, ignoring case. Empty cells match.
func lacksFold(sub string) func(series.Element) bool {
	sub = strings.ToLower(sub)
	return func(el series.Element) bool {
		if el.IsNA() {
			return true
		}
		return !strings.Contains(strings.ToLower(el.String()), sub)
	}
}

// Dedupe keeps the first row of every distinct value of key.
func Dedupe(df dataframe.DataFrame, key string) dataframe.DataFrame {
	keys := values(df, key)
	seen := make(map[string]struct{}, len(keys))
	keep := make([]bool, len(keys))
	for i, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keep[i] = true
	}
	return df.Subset(keep)
}

// ClassifyReason derives the reason label of one row.
func ClassifyReason(status, reason, undel string) string {
	switch status {
	case StatusGenuine:
		return LabelGenuine
	case StatusFake:
		switch {
		case reason == reasonIVRFake:
			return LabelIVRFake
		case reason == reasonNoCallUDBad:
			return LabelNoCallUDBad
		case undel == undelDelivered:
			return LabelDeliveredGeo
		case reason == reasonGeoFake:
			return LabelGeoFake
		case reason == reasonNoCallFake:
			return LabelNoCallFake
		}
	}
	return LabelInvalidCall
}

// AddReasonLabel inserts ColReasonLabel right after ColReason.
func AddReasonLabel(df dataframe.DataFrame) dataframe.DataFrame {
	status := values(df, ColStatus)
	reason := values(df, ColReason)
	undel := values(df, ColUndel)
	labels := make([]string, len(status))
	for i := range labels {
		labels[i] = ClassifyReason(status[i], reason[i], undel[i])
	}
	df = df.Mutate(series.New(labels, series.String, ColReasonLabel))
	if df.Err != nil {
		return df
	}

	names := df.Names()
	order := make([]string, 0, len(names))
	for _, n := range names {
		if n == ColReasonLabel {
			continue
		}
		order = append(order, n)
		if n == ColReason {
			order = append(order, ColReasonLabel)
		}
	}
	return df.Select(order)
}

// Enrich appends L3, L2 and L1 of every row's hub. Hubs missing from the
// matrix get empty levels. It also returns the number of unmatched rows.
func Enrich(df dataframe.DataFrame, matrix LevelLookup) (dataframe.DataFrame, int) {
	hubs := values(df, ColHub)
	l3 := make([]string, len(hubs))
	l2 := make([]string, len(hubs))
	l1 := make([]string, len(hubs))
	unmatched := 0
	for i, h := range hubs {
		lv, ok := matrix.Lookup(h)
		if !ok {
			unmatched++
			continue
		}
		l3[i], l2[i], l1[i] = lv.L3, lv.L2, lv.L1
	}
	df = df.
		Mutate(series.New(l3, series.String, ColL3)).
		Mutate(series.New(l2, series.String, ColL2)).
		Mutate(series.New(l1, series.String, ColL1))
	return df, unmatched
}

// Categorize names the business line of a tracking id.
func Categorize(trackingID string) string {
	switch {
	case strings.Contains(trackingID, "FKH"):
		return "Flipkart Health"
	case strings.Contains(trackingID, "FMR"):
		return "Flipkart Mail Room"
	case strings.Contains(trackingID, "FMP"):
		return "Flipkart"
	case strings.Contains(trackingID, "MYE"),
		strings.Contains(trackingID, "MYS"),
		strings.Contains(trackingID, "MYN"):
		return "Myntra"
	}
	return "External"
}

// AddCategory appends ColCategory.
func AddCategory(df dataframe.DataFrame) dataframe.DataFrame {
	ids := values(df, ColTrackingID)
	cats := make([]string, len(ids))
	for i, id := range ids {
		cats[i] = Categorize(id)
	}
	return df.Mutate(series.New(cats, series.String, ColCategory))
}

// DetailRows drops genuine attempts and rows without an L1 contact.
func DetailRows(df dataframe.DataFrame) dataframe.DataFrame {
	return df.
		Filter(dataframe.F{Colname: ColStatus, Comparator: series.CompFunc, Comparando: func(el series.Element) bool {
			return el.IsNA() || el.String() != StatusGenuine
		}}).
		Filter(dataframe.F{Colname: ColL1, Comparator: series.CompFunc, Comparando: func(el series.Element) bool {
			return !el.IsNA() && el.String() != ""
		}})
}

// Split partitions df, in order, into frames of at most maxRows rows.
// The part count follows the detail rows, not the deduped rows, so no
// header-only trailing parts are written and an empty frame yields no parts.
func Split(df dataframe.DataFrame, maxRows int) ([]dataframe.DataFrame, error) {
	if maxRows <= 0 {
		return nil, fmt.Errorf("max rows per part must be positive, got %d", maxRows)
	}
	n := df.Nrow()
	var parts []dataframe.DataFrame
	for start := 0; start < n; start += maxRows {
		end := min(start+maxRows, n)
		idx := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			idx = append(idx, i)
		}
		part := df.Subset(idx)
		if part.Err != nil {
			return nil, fmt.Errorf("split rows %d-%d: %w", start, end, part.Err)
		}
		parts = append(parts, part)
	}
	return parts, nil
}
