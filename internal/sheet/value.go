// Package sheet decodes spreadsheet workbooks into typed cell grids and
// converts individual sheets into key-value records.
package sheet

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the textual form every recognized date cell is normalized to.
const DateLayout = "2006-01-02"

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "empty"
	}
}

// Value is a single spreadsheet cell: text, number, date or empty.
// Dates are kept in their normalized DateLayout form.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
}

// Record maps a trimmed header to the cell value in that column.
// The key set is whatever the source sheet had; no schema is enforced.
type Record map[string]Value

func Empty() Value { return Value{} }

func Text(s string) Value { return Value{Kind: KindText, Text: s} }

func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }

func Date(t time.Time) Value { return Value{Kind: KindDate, Text: t.Format(DateLayout)} }

// IsEmpty reports whether the cell carries no data.
func (v Value) IsEmpty() bool {
	return v.Kind == KindEmpty
}

// String renders the value the way it is shown in exports and headers.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindText, KindDate:
		return v.Text
	default:
		return ""
	}
}

// MarshalJSON writes numbers as JSON numbers and everything else as strings.
// Empty cells become "".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Number)
	case KindText, KindDate:
		return json.Marshal(v.Text)
	default:
		return []byte(`""`), nil
	}
}

// UnmarshalJSON restores a value written by MarshalJSON. Strings in
// DateLayout come back as dates.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Empty()
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch {
		case s == "":
			*v = Empty()
		case isNormalizedDate(s):
			*v = Value{Kind: KindDate, Text: s}
		default:
			*v = Text(s)
		}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Number(f)
	return nil
}

func isNormalizedDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// cellText trims a text cell; whitespace-only text is empty.
func cellText(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty()
	}
	return Text(s)
}

func boolText(b bool) Value {
	if b {
		return Text("TRUE")
	}
	return Text("FALSE")
}
