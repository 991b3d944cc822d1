// Package escalation reads the hub escalation matrix workbook.
package escalation

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Levels are the escalation contacts of a hub.
type Levels struct {
	L3 string
	L2 string
	L1 string
}

// Matrix maps hub names (case-insensitive) to their escalation levels.
type Matrix struct {
	byHub map[string]Levels
}

const hubHeader = "hub name"

// Load reads the first sheet of the workbook at path.
func Load(path string) (*Matrix, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open escalation matrix: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in escalation matrix %s", path)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	m, err := FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FromRows builds a matrix from a header row followed by data rows.
// A hub listed twice keeps its first row.
func FromRows(rows [][]string) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("escalation matrix is empty")
	}
	hub, l3, l2, l1 := -1, -1, -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case hubHeader:
			hub = i
		case "l3":
			l3 = i
		case "l2":
			l2 = i
		case "l1":
			l1 = i
		}
	}
	if hub == -1 {
		return nil, fmt.Errorf("required column 'Hub Name' not found in escalation matrix headers")
	}

	m := &Matrix{byHub: make(map[string]Levels, len(rows)-1)}
	for _, row := range rows[1:] {
		key := normalizeHub(cell(row, hub))
		if key == "" {
			continue
		}
		if _, dup := m.byHub[key]; dup {
			continue
		}
		m.byHub[key] = Levels{L3: cell(row, l3), L2: cell(row, l2), L1: cell(row, l1)}
	}
	return m, nil
}

// Lookup returns the levels of hub.
func (m *Matrix) Lookup(hub string) (Levels, bool) {
	lv, ok := m.byHub[normalizeHub(hub)]
	return lv, ok
}

// Len returns the number of distinct hubs.
func (m *Matrix) Len() int { return len(m.byHub) }

// normalizeHub folds case and drops surrounding spaces on both the matrix and
// the report side, so "Noida_Hub " and "noida_hub" join.
func normalizeHub(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
