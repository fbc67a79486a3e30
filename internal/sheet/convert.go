package sheet

import "strings"

// Converted is the record form of one sheet.
type Converted struct {
	// Columns lists the distinct non-blank headers in first-seen order.
	Columns []string
	Records []Record
}

// Convert turns a sheet into records keyed by its header row.
//
// Entirely empty rows are dropped first; the first remaining row is the
// header. A sheet needs a header and at least one data row, otherwise the
// result has no records. Columns with a blank header are ignored. When two
// columns share a trimmed header the rightmost one wins. Cells missing from
// a short row are stored as empty values.
func Convert(s *Sheet) Converted {
	if s == nil {
		return Converted{}
	}

	rows := make([][]Value, 0, len(s.Rows))
	for _, row := range s.Rows {
		if !isEmptyRow(row) {
			rows = append(rows, row)
		}
	}
	if len(rows) < 2 {
		return Converted{}
	}

	header := rows[0]
	keys := make([]string, len(header))
	var columns []string
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		key := strings.TrimSpace(h.String())
		keys[i] = key
		if key != "" && !seen[key] {
			seen[key] = true
			columns = append(columns, key)
		}
	}
	if len(columns) == 0 {
		return Converted{}
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(Record, len(columns))
		for i, key := range keys {
			if key == "" {
				continue
			}
			if i < len(row) {
				rec[key] = row[i]
			} else {
				rec[key] = Empty()
			}
		}
		records = append(records, rec)
	}

	return Converted{Columns: columns, Records: records}
}

func isEmptyRow(row []Value) bool {
	for _, v := range row {
		if !v.IsEmpty() {
			return false
		}
	}
	return true
}
