package sheet

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxReader types the raw cell values of one Office Open XML workbook by
// their stored cell type and number format.
type xlsxReader struct {
	f          *excelize.File
	date1904   bool
	dateStyles map[int]bool
}

func parseXLSX(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	x := &xlsxReader{f: f, dateStyles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		x.date1904 = *props.Date1904
	}

	names := f.GetSheetList()
	wb := &Workbook{Sheets: make([]*Sheet, 0, len(names))}

	for _, name := range names {
		rows, err := x.rows(name)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadable, name, err)
		}
		wb.Sheets = append(wb.Sheets, &Sheet{Name: name, Rows: rows})
	}

	return wb, nil
}

func (x *xlsxReader) rows(sheet string) ([][]Value, error) {
	raw, err := x.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	rows := make([][]Value, len(raw))
	for r, cells := range raw {
		row := make([]Value, len(cells))
		for c, s := range cells {
			if row[c], err = x.cell(sheet, c+1, r+1, s); err != nil {
				return nil, err
			}
		}
		rows[r] = row
	}
	return rows, nil
}

// cell types one raw value. Only values that could be a number, boolean or
// stored date need the cell's type; anything else is text whatever it was
// stored as.
func (x *xlsxReader) cell(sheet string, col, row int, raw string) (Value, error) {
	if strings.TrimSpace(raw) == "" {
		return Empty(), nil
	}

	n, numErr := strconv.ParseFloat(raw, 64)
	date, isDate := parseISODate(raw)
	if numErr != nil && !isDate {
		return cellText(raw), nil
	}

	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return Value{}, err
	}
	typ, err := x.f.GetCellType(sheet, ref)
	if err != nil {
		return Value{}, err
	}

	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if numErr != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return cellText(raw), nil
		}
		return x.number(sheet, ref, n)
	case excelize.CellTypeBool:
		return boolText(raw == "1"), nil
	case excelize.CellTypeDate:
		if isDate {
			return date, nil
		}
	}
	return cellText(raw), nil
}

// number returns a numeric cell as a date when its number format renders
// one.
func (x *xlsxReader) number(sheet, ref string, n float64) (Value, error) {
	idx, err := x.f.GetCellStyle(sheet, ref)
	if err != nil {
		return Value{}, err
	}
	if x.isDateStyle(idx) {
		if v, ok := serialDate(n, x.date1904); ok {
			return v, nil
		}
	}
	return Number(n), nil
}

func (x *xlsxReader) isDateStyle(idx int) bool {
	if d, ok := x.dateStyles[idx]; ok {
		return d
	}

	var d bool
	if style, err := x.f.GetStyle(idx); err == nil {
		if style.CustomNumFmt != nil {
			d = isDateFormatCode(*style.CustomNumFmt)
		} else {
			d = isDateFormatID(style.NumFmt)
		}
	}
	x.dateStyles[idx] = d
	return d
}
