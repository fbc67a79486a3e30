package sheet

// parser.go decodes workbook containers into ordered, named grids of cells.
//
// Two containers are supported, picked by magic number rather than by the
// uploaded filename:
//
//   - Office Open XML (.xlsx), a ZIP archive, decoded with excelize
//   - BIFF8 (.xls), an OLE2 compound file opened with extrame/ole2
//
// Cells are typed by how the workbook stored them rather than by how they
// look. A number whose format renders a date becomes a date in DateLayout.

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrUnreadable is returned when the bytes are not a workbook we can decode.
	ErrUnreadable = errors.New("unreadable workbook")

	// ErrNoSheets is returned when a workbook decodes but contains no sheets.
	ErrNoSheets = errors.New("workbook contains no sheets")
)

var (
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Sheet is one tab of a workbook.
type Sheet struct {
	Name string
	Rows [][]Value
}

// Workbook is the ordered list of sheets decoded from one file. An entry is
// nil when the container listed a sheet that could not be loaded.
type Workbook struct {
	Sheets []*Sheet
}

// Parser decodes spreadsheet bytes. The zero value is ready to use.
type Parser struct{}

// NewParser returns a workbook parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes data into a Workbook. It fails with ErrUnreadable when the
// container is not recognized or is corrupt, and with ErrNoSheets when the
// workbook is empty.
func (p *Parser) Parse(data []byte) (wb *Workbook, err error) {
	// Both decoders can panic on malformed input.
	defer func() {
		if r := recover(); r != nil {
			wb = nil
			err = fmt.Errorf("%w: decoder panic: %v", ErrUnreadable, r)
		}
	}()

	switch {
	case bytes.HasPrefix(data, zipMagic):
		wb, err = parseXLSX(data)
	case bytes.HasPrefix(data, ole2Magic):
		wb, err = parseXLS(data)
	default:
		return nil, fmt.Errorf("%w: not a spreadsheet container", ErrUnreadable)
	}
	if err != nil {
		return nil, err
	}

	if len(wb.Sheets) == 0 {
		return nil, ErrNoSheets
	}
	return wb, nil
}
