package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fdreport/internal/escalation"
)

var reportHeader = []string{
	ColTrackingID, ColZone, ColHub, ColStatus, ColReason, ColUndel,
}

func writeCSV(t *testing.T, dir, name string, records [][]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(records))
	require.NoError(t, f.Close())
	return path
}

func frame(t *testing.T, records [][]string) dataframe.DataFrame {
	t.Helper()
	cols := make([]series.Series, len(records[0]))
	for c, name := range records[0] {
		vals := make([]string, 0, len(records)-1)
		for _, rec := range records[1:] {
			vals = append(vals, rec[c])
		}
		cols[c] = series.New(vals, series.String, name)
	}
	df := dataframe.New(cols...)
	require.NoError(t, df.Err)
	return df
}

func testMatrix(t *testing.T) *escalation.Matrix {
	t.Helper()
	m, err := escalation.FromRows([][]string{
		{"Hub Name", "L3", "L2", "L1"},
		{"Delhi_Okhla_H", "a3", "a2", "a1"},
		{"Noida_Hub", "n3", "n2", "n1"},
	})
	require.NoError(t, err)
	return m
}

func TestLoadReports_AlignsColumns(t *testing.T) {
	dir := t.TempDir()
	first := writeCSV(t, dir, "1.csv", [][]string{
		{"a", "b"},
		{"1", "2"},
		{"3", "4"},
	})
	empty := writeCSV(t, dir, "2.csv", [][]string{{"a", "b"}})
	second := writeCSV(t, dir, "3.csv", [][]string{
		{"b", "c"},
		{"5", "6"},
	})

	df, err := LoadReports([]string{first, empty, second}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, df.Names())
	assert.Equal(t, 3, df.Nrow())
	assert.Equal(t, []string{"1", "3", ""}, values(df, "a"))
	assert.Equal(t, []string{"2", "4", "5"}, values(df, "b"))
	assert.Equal(t, []string{"", "", "6"}, values(df, "c"))
}

func TestLoadReports_BOMAndRaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bom.csv")
	content := "\xEF\xBB\xBFzone,hub_name\nNorth\nNorth,Hub_A,extra\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	df, err := LoadReports([]string{path}, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, []string{ColZone, ColHub}, df.Names())
	assert.Equal(t, []string{"", "Hub_A"}, values(df, ColHub))
}

func TestLoadReports_LegacyEncoding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latin.csv")
	require.NoError(t, os.WriteFile(path, []byte("hub_name\nCaf\xe9_Hub\n"), 0o644))

	df, err := LoadReports([]string{path}, "windows-1252")
	require.NoError(t, err)
	assert.Equal(t, []string{"Café_Hub"}, values(df, ColHub))

	_, err = LoadReports([]string{path}, "ebcdic")
	assert.Error(t, err)
}

func TestLoadReports_NoReports(t *testing.T) {
	_, err := LoadReports(nil, "")
	assert.True(t, IsNoReports(err))

	dir := t.TempDir()
	blank := filepath.Join(dir, "blank.csv")
	require.NoError(t, os.WriteFile(blank, nil, 0o644))
	_, err = LoadReports([]string{blank}, "")
	assert.ErrorIs(t, err, ErrNoReports)
}

func TestFilterRows(t *testing.T) {
	df := frame(t, [][]string{
		{ColZone, ColHub, ColReason},
		{"North", "Delhi_Okhla_H", "GEO_FAKE"},
		{"South", "Chennai_Hub", "GEO_FAKE"},
		{"North", "MYNT_Gurgaon", "GEO_FAKE"},
		{"North", "Noida_Hub", "gps_Spoofed"},
		{"North", "", ""},
		{"north", "Noida_Hub", "GEO_FAKE"},
	})

	got := FilterRows(df, "North")
	require.NoError(t, got.Err)
	assert.Equal(t, []string{"Delhi_Okhla_H", ""}, values(got, ColHub))
}

func TestDedupe(t *testing.T) {
	df := frame(t, [][]string{
		{ColTrackingID, ColHub},
		{"T1", "first"},
		{"T2", "only"},
		{"T1", "second"},
		{"T3", "x"},
		{"T2", "again"},
	})

	got := Dedupe(df, ColTrackingID)
	require.NoError(t, got.Err)
	assert.Equal(t, []string{"T1", "T2", "T3"}, values(got, ColTrackingID))
	assert.Equal(t, []string{"first", "only", "x"}, values(got, ColHub))
}

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		status, reason, undel string
		want                  string
	}{
		{"GENUINE", "GEO_FAKE", "DELIVERED", LabelGenuine},
		{"FAKE", "IVR_FAKE", "DELIVERED", LabelIVRFake},
		{"FAKE", "NO_CALL_FAKE_UDBad_Fake", "DELIVERED", LabelNoCallUDBad},
		{"FAKE", "GEO_FAKE", "DELIVERED", LabelDeliveredGeo},
		{"FAKE", "NO_CALL_FAKE", "DELIVERED", LabelDeliveredGeo},
		{"FAKE", "GEO_FAKE", "UNDELIVERED", LabelGeoFake},
		{"FAKE", "NO_CALL_FAKE", "", LabelNoCallFake},
		{"FAKE", "OTHER", "", LabelInvalidCall},
		{"", "GEO_FAKE", "", LabelInvalidCall},
		{"genuine", "", "", LabelInvalidCall},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.reason+"/"+tt.undel, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyReason(tt.status, tt.reason, tt.undel))
		})
	}
}

func TestAddReasonLabel_PlacedAfterReason(t *testing.T) {
	df := frame(t, [][]string{
		{ColStatus, ColReason, ColUndel, ColHub},
		{"FAKE", "GEO_FAKE", "", "h"},
		{"GENUINE", "", "", "h"},
	})

	got := AddReasonLabel(df)
	require.NoError(t, got.Err)
	assert.Equal(t, []string{ColStatus, ColReason, ColReasonLabel, ColUndel, ColHub}, got.Names())
	assert.Equal(t, []string{LabelGeoFake, LabelGenuine}, values(got, ColReasonLabel))
}

func TestCategorize(t *testing.T) {
	tests := map[string]string{
		"FKH123":        "Flipkart Health",
		"FMR999":        "Flipkart Mail Room",
		"FMPC0001":      "Flipkart",
		"xxFKHFMP":      "Flipkart Health",
		"MYEP1":         "Myntra",
		"MYSP1":         "Myntra",
		"MYNP1":         "Myntra",
		"SF123":         "External",
		"":              "External",
		"fmp-lowercase": "External",
	}
	for id, want := range tests {
		assert.Equal(t, want, Categorize(id), id)
	}
}

func TestEnrich(t *testing.T) {
	df := frame(t, [][]string{
		{ColHub},
		{"DELHI_OKHLA_H"},
		{"Unknown"},
		{""},
	})

	got, unmatched := Enrich(df, testMatrix(t))
	require.NoError(t, got.Err)
	assert.Equal(t, 2, unmatched)
	assert.Equal(t, []string{"a1", "", ""}, values(got, ColL1))
	assert.Equal(t, []string{"a3", "", ""}, values(got, ColL3))
}

func TestBuildSummary(t *testing.T) {
	df := frame(t, [][]string{
		{ColHub, ColL3, ColL2, ColL1, ColReasonLabel},
		{"B_Hub", "b3", "b2", "b1", LabelGeoFake},
		{"A_Hub", "a3", "a2", "a1", LabelGenuine},
		{"B_Hub", "b3", "b2", "b1", LabelGeoFake},
		{"A_Hub", "a3", "a2", "a1", LabelIVRFake},
		{"C_Hub", "c3", "c2", "c1", LabelNoCallUDBad},
		{"D_Hub", "", "", "", LabelGeoFake},
		{"", "x3", "x2", "x1", LabelGeoFake},
	})

	got := BuildSummary(df)
	want := &Summary{
		Reasons: SummaryReasons,
		Rows: []SummaryRow{
			{Hub: "A_Hub", L3: "a3", L2: "a2", L1: "a1", Counts: []int{0, 0, 1, 0, 0, 1, 0}},
			{Hub: "B_Hub", L3: "b3", L2: "b2", L1: "b1", Counts: []int{0, 2, 0, 0, 0, 0, 0}},
			{Hub: "C_Hub", L3: "c3", L2: "c2", L1: "c1", Counts: []int{0, 0, 0, 0, 0, 0, 0}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, got.Total(LabelGeoFake))
	assert.Equal(t, 0, got.Total("not a reason"))
	assert.Equal(t, []string{
		ColHub, ColL3, ColL2, ColL1,
		"DELIVERED_GEO_FAKE", "GEO_FAKE", "Genuine Attempt", "INVALID_CALL_FAKE", "NO_CALL_FAKE", "IVR_Fake", "UDBad_Fake",
	}, got.Header())
	assert.Equal(t, []string{"B_Hub", "b3", "b2", "b1", "0", "2", "0", "0", "0", "0", "0"}, got.Records()[1])
	assert.Equal(t, []interface{}{"A_Hub", "a3", "a2", "a1", 0, 0, 1, 0, 0, 1, 0}, got.Values()[0])
}

func TestDetailRows(t *testing.T) {
	df := frame(t, [][]string{
		{ColTrackingID, ColStatus, ColL1},
		{"T1", "FAKE", "a1"},
		{"T2", "GENUINE", "a1"},
		{"T3", "FAKE", ""},
		{"T4", "", "b1"},
	})

	got := DetailRows(df)
	require.NoError(t, got.Err)
	assert.Equal(t, []string{"T1", "T4"}, values(got, ColTrackingID))
}

func TestSplit(t *testing.T) {
	df := frame(t, [][]string{
		{ColTrackingID},
		{"1"}, {"2"}, {"3"}, {"4"}, {"5"},
	})

	parts, err := Split(df, 2)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, []string{"1", "2"}, values(parts[0], ColTrackingID))
	assert.Equal(t, []string{"3", "4"}, values(parts[1], ColTrackingID))
	assert.Equal(t, []string{"5"}, values(parts[2], ColTrackingID))

	parts, err = Split(df, 5)
	require.NoError(t, err)
	assert.Len(t, parts, 1)

	parts, err = Split(df.Subset([]int{}), 2)
	require.NoError(t, err)
	assert.Empty(t, parts)

	_, err = Split(df, 0)
	assert.Error(t, err)
}

func pipelineFixture(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	first := writeCSV(t, dir, "EkartReport-LAST_MILE-FWD-2026.10.19-12.00-1.csv", [][]string{
		reportHeader,
		{"FMP001", "North", "Delhi_Okhla_H", "FAKE", "GEO_FAKE", "UNDELIVERED"},
		{"FKH002", "North", "Delhi_Okhla_H", "GENUINE", "", "DELIVERED"},
		{"MYN003", "North", "Mynt_Gurgaon", "FAKE", "GEO_FAKE", ""},
		{"FMR004", "South", "Delhi_Okhla_H", "FAKE", "GEO_FAKE", ""},
		{"XYZ005", "North", "Noida_Hub", "FAKE", "geo_spoof_check", ""},
	})
	second := writeCSV(t, dir, "EkartReport-LAST_MILE-FWD-2026.10.19-12.00-2.csv", [][]string{
		reportHeader,
		{"FMP001", "North", "Noida_Hub", "FAKE", "IVR_FAKE", ""},
		{"FMP007", "North", "Noida_Hub", "FAKE", "NO_CALL_FAKE", "DELIVERED"},
		{"EXT008", "North", "Unknown_Hub", "FAKE", "NO_CALL_FAKE", ""},
		{"MYS009", "North", "noida_hub", "FAKE", "SOMETHING", ""},
	})
	return []string{first, second}
}

func TestProcess(t *testing.T) {
	paths := pipelineFixture(t)

	res, err := Process(paths, testMatrix(t), Options{MaxRowsPerFile: 2})
	require.NoError(t, err)

	assert.Equal(t, Stats{
		Files:         2,
		Merged:        9,
		Filtered:      6,
		Deduped:       5,
		Detail:        3,
		Parts:         2,
		UnmatchedHubs: 1,
	}, res.Stats)

	assert.Equal(t, []string{
		ColTrackingID, ColZone, ColHub, ColStatus, ColReason, ColReasonLabel, ColUndel,
		ColL3, ColL2, ColL1, ColCategory,
	}, res.Enriched.Names())

	assert.Equal(t, []string{"FMP001", "FMP007", "MYS009"}, values(res.Detail, ColTrackingID))
	assert.Equal(t, []string{"Flipkart", "Flipkart", "Myntra"}, values(res.Detail, ColCategory))
	assert.Equal(t, []string{"FMP001", "FMP007"}, values(res.Parts[0], ColTrackingID))
	assert.Equal(t, []string{"MYS009"}, values(res.Parts[1], ColTrackingID))

	want := []SummaryRow{
		{Hub: "Delhi_Okhla_H", L3: "a3", L2: "a2", L1: "a1", Counts: []int{0, 1, 1, 0, 0, 0, 0}},
		{Hub: "Noida_Hub", L3: "n3", L2: "n2", L1: "n1", Counts: []int{1, 0, 0, 0, 0, 0, 0}},
		{Hub: "noida_hub", L3: "n3", L2: "n2", L1: "n1", Counts: []int{0, 0, 0, 1, 0, 0, 0}},
	}
	if diff := cmp.Diff(want, res.Summary.Rows); diff != "" {
		t.Fatalf("summary rows mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_DefaultsKeepOnePart(t *testing.T) {
	res, err := Process(pipelineFixture(t), testMatrix(t), Options{})
	require.NoError(t, err)
	assert.Len(t, res.Parts, 1)
}

func TestProcess_MissingColumn(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "r.csv", [][]string{
		{ColZone, ColHub},
		{"North", "Delhi_Okhla_H"},
	})

	_, err := Process([]string{path}, testMatrix(t), Options{})
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), ColTrackingID)
}

func TestPreview(t *testing.T) {
	stats, err := Preview(pipelineFixture(t), Options{Zone: "North"})
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 2, Merged: 9, Filtered: 6, Deduped: 5}, stats)
}
