package sheet

import (
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// isDateFormatID reports whether a built-in number format id renders a
// calendar date. Time-only formats (18-21, 45-47) are not dates.
func isDateFormatID(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		// East Asian locale date formats.
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom number format code renders a
// calendar date: its first section holds a day or year token once literals,
// escapes and bracketed modifiers are removed.
func isDateFormatCode(code string) bool {
	var quoted, bracketed bool
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case quoted:
			quoted = c != '"'
		case bracketed:
			bracketed = c != ']'
		case c == '"':
			quoted = true
		case c == '[':
			bracketed = true
		case c == '\\', c == '_', c == '*':
			i++
		case c == ';':
			return false
		case c == 'y', c == 'Y', c == 'd', c == 'D':
			return true
		}
	}
	return false
}

// serialDate converts an Excel date serial to a calendar date.
func serialDate(serial float64, date1904 bool) (Value, bool) {
	if serial < 0 {
		return Value{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return Value{}, false
	}
	return Date(t), true
}

// isoDateLayouts are the forms excelize writes for cells stored with t="d".
var isoDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05",
	"20060102T150405Z",
	"20060102T150405",
	DateLayout,
}

func parseISODate(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date(t), true
		}
	}
	return Value{}, false
}
