// Package sheettest builds in-memory .xlsx fixtures for tests.
package sheettest

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// Fixture describes one sheet of a generated workbook. A nil Rows slice
// produces an empty sheet. Styles are applied by cell reference ("B2") after
// the rows are written.
type Fixture struct {
	Name   string
	Rows   [][]any
	Styles map[string]*excelize.Style
}

// XLSX writes the fixtures, in order, into a new workbook and returns its
// bytes. The first fixture replaces excelize's default "Sheet1".
func XLSX(t testing.TB, sheets ...Fixture) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				t.Fatalf("rename first sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			t.Fatalf("new sheet %q: %v", s.Name, err)
		}

		for r, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			values := row
			if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
				t.Fatalf("write row %d of %q: %v", r, s.Name, err)
			}
		}

		for ref, style := range s.Styles {
			id, err := f.NewStyle(style)
			if err != nil {
				t.Fatalf("new style for %s: %v", ref, err)
			}
			if err := f.SetCellStyle(s.Name, ref, ref, id); err != nil {
				t.Fatalf("style %s of %q: %v", ref, s.Name, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}
