// Package output writes the local artifacts of a run: the summary CSV, the
// detail parts and the optional summary workbook.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"fdreport/internal/report"
)

// PartFileName returns the name of the i-th (1-based) detail part.
func PartFileName(prefix string, i int) string {
	return fmt.Sprintf("%s%d.csv", prefix, i)
}

// WriteSummaryCSV writes the header and one line per summary row.
func WriteSummaryCSV(path string, s *report.Summary) error {
	return writeFile(path, func(w io.Writer) error {
		if err := writeRecord(w, s.Header()); err != nil {
			return err
		}
		for _, rec := range s.Records() {
			if err := writeRecord(w, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteParts writes every part to dir as <prefix><i>.csv and returns the paths in order.
func WriteParts(dir, prefix string, parts []dataframe.DataFrame) ([]string, error) {
	paths := make([]string, 0, len(parts))
	for i, part := range parts {
		path := filepath.Join(dir, PartFileName(prefix, i+1))
		if err := WriteFrame(path, part); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteFrame writes df with a header row. NaN cells are written empty.
func WriteFrame(path string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return df.Err
	}
	return writeFile(path, func(w io.Writer) error {
		names := df.Names()
		if err := writeRecord(w, names); err != nil {
			return err
		}
		cols := make([][]string, len(names))
		for c, name := range names {
			cols[c] = Column(df, name)
		}
		rec := make([]string, len(names))
		for r := 0; r < df.Nrow(); r++ {
			for c := range cols {
				rec[c] = cols[c][r]
			}
			if err := writeRecord(w, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Column returns the cells of a column, NaN as empty strings.
func Column(df dataframe.DataFrame, name string) []string {
	s := df.Col(name)
	out := make([]string, df.Nrow())
	if s.Err != nil {
		return out
	}
	for i := range out {
		if el := s.Elem(i); !el.IsNA() {
			out[i] = el.String()
		}
	}
	return out
}

func writeFile(path string, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// writeRecord quotes only fields that need it and ends lines with \n.
func writeRecord(w io.Writer, rec []string) error {
	for i, field := range rec {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if needsQuote(field) {
			field = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
		}
		if _, err := io.WriteString(w, field); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func needsQuote(s string) bool {
	return strings.ContainsAny(s, ",\"\n\r")
}
