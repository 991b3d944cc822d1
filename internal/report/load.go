package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// lookupEncoding maps a configured encoding name to a decoder. UTF-8 needs none.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251, nil
	}
	return nil, fmt.Errorf("unsupported input encoding %q", name)
}

// table is one CSV file as read from disk.
type table struct {
	headers []string
	frame   dataframe.DataFrame // zero value when the file has no data rows
	rows    int
}

func readTable(path string, enc encoding.Encoding) (table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return table{}, err
	}
	b = bytes.TrimPrefix(b, utf8BOM)

	var src io.Reader = bytes.NewReader(b)
	if enc != nil {
		src = transform.NewReader(src, enc.NewDecoder())
	}
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return table{}, nil
	}
	headers := records[0]
	for i, rec := range records[1:] {
		switch {
		case len(rec) < len(headers):
			records[i+1] = append(rec, make([]string, len(headers)-len(rec))...)
		case len(rec) > len(headers):
			records[i+1] = rec[:len(headers)]
		}
	}
	t := table{headers: headers, rows: len(records) - 1}
	if t.rows == 0 {
		return t, nil
	}
	t.frame = dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{}),
	)
	if t.frame.Err != nil {
		return table{}, fmt.Errorf("load %s: %w", path, t.frame.Err)
	}
	// fixColnames may have renamed duplicate or blank headers
	t.headers = t.frame.Names()
	return t, nil
}

// LoadReports reads every CSV and stacks them in order. Files with differing
// columns are aligned on the union of their columns, missing cells left empty.
func LoadReports(paths []string, encodingName string) (dataframe.DataFrame, error) {
	if len(paths) == 0 {
		return dataframe.DataFrame{}, ErrNoReports
	}
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	tables := make([]table, 0, len(paths))
	var union []string
	seen := map[string]struct{}{}
	for _, p := range paths {
		t, err := readTable(p, enc)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		for _, h := range t.headers {
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				union = append(union, h)
			}
		}
		tables = append(tables, t)
	}
	if len(union) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: all files are empty", ErrNoReports)
	}

	merged := emptyFrame(union)
	for _, t := range tables {
		if t.rows == 0 {
			continue
		}
		aligned := t.frame
		for _, col := range union {
			if !hasColumn(aligned, col) {
				aligned = aligned.Mutate(series.New(make([]string, t.rows), series.String, col))
			}
		}
		aligned = aligned.Select(union)
		merged = merged.RBind(aligned)
		if merged.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("merge reports: %w", merged.Err)
		}
	}
	return merged, nil
}

func emptyFrame(names []string) dataframe.DataFrame {
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = series.New([]string{}, series.String, n)
	}
	return dataframe.New(cols...)
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func checkColumns(df dataframe.DataFrame, cols []string) error {
	var missing []string
	for _, c := range cols {
		if !hasColumn(df, c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// values returns the cells of a column with NaN cells as empty strings.
func values(df dataframe.DataFrame, col string) []string {
	s := df.Col(col)
	if s.Err != nil {
		return make([]string, df.Nrow())
	}
	out := make([]string, s.Len())
	for i := range out {
		el := s.Elem(i)
		if el.IsNA() {
			continue
		}
		out[i] = el.String()
	}
	return out
}

// IsNoReports reports whether err means there was nothing to process.
func IsNoReports(err error) bool {
	return errors.Is(err, ErrNoReports)
}
