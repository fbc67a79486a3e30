package sheet_test

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/LandRegistry/internal/sheet"
	"github.com/JonMunkholm/LandRegistry/internal/sheet/sheettest"
)

func TestValueJSON(t *testing.T) {
	rec := sheet.Record{
		"Name":     sheet.Text("Alice"),
		"Age":      sheet.Number(30),
		"Surveyed": sheet.Value{Kind: sheet.KindDate, Text: "2024-03-15"},
		"Notes":    sheet.Empty(),
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Name":"Alice","Age":30,"Surveyed":"2024-03-15","Notes":""}`, string(data))

	var back sheet.Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}

func TestValueUnmarshalNull(t *testing.T) {
	var v sheet.Value
	require.NoError(t, json.Unmarshal([]byte("null"), &v))
	assert.True(t, v.IsEmpty())
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name        string
		rows        [][]sheet.Value
		wantColumns []string
		wantRecords []sheet.Record
	}{
		{
			name: "header and one row",
			rows: [][]sheet.Value{
				{sheet.Text("Name"), sheet.Text("Age")},
				{sheet.Text("Alice"), sheet.Number(30)},
			},
			wantColumns: []string{"Name", "Age"},
			wantRecords: []sheet.Record{{"Name": sheet.Text("Alice"), "Age": sheet.Number(30)}},
		},
		{
			name: "header only yields nothing",
			rows: [][]sheet.Value{
				{sheet.Text("Name"), sheet.Text("Age")},
			},
		},
		{
			name: "empty rows dropped before header detection",
			rows: [][]sheet.Value{
				{sheet.Empty(), sheet.Empty()},
				{sheet.Text("Parcel"), sheet.Text("Area")},
				{},
				{sheet.Text("P-1"), sheet.Number(12.5)},
				{sheet.Empty()},
				{sheet.Text("P-2"), sheet.Number(3)},
			},
			wantColumns: []string{"Parcel", "Area"},
			wantRecords: []sheet.Record{
				{"Parcel": sheet.Text("P-1"), "Area": sheet.Number(12.5)},
				{"Parcel": sheet.Text("P-2"), "Area": sheet.Number(3)},
			},
		},
		{
			name: "blank header column dropped and short rows padded",
			rows: [][]sheet.Value{
				{sheet.Text(" District "), sheet.Empty(), sheet.Text("Households")},
				{sheet.Text("North"), sheet.Text("ignored")},
			},
			wantColumns: []string{"District", "Households"},
			wantRecords: []sheet.Record{{"District": sheet.Text("North"), "Households": sheet.Empty()}},
		},
		{
			name: "duplicate header last wins",
			rows: [][]sheet.Value{
				{sheet.Text("Owner"), sheet.Text("Owner ")},
				{sheet.Text("first"), sheet.Text("second")},
			},
			wantColumns: []string{"Owner"},
			wantRecords: []sheet.Record{{"Owner": sheet.Text("second")}},
		},
		{
			name: "numeric header becomes string key",
			rows: [][]sheet.Value{
				{sheet.Number(2023)},
				{sheet.Number(7)},
			},
			wantColumns: []string{"2023"},
			wantRecords: []sheet.Record{{"2023": sheet.Number(7)}},
		},
		{
			name: "all blank headers yields nothing",
			rows: [][]sheet.Value{
				{sheet.Empty(), sheet.Text(" ")},
				{sheet.Text("a"), sheet.Text("b")},
			},
		},
		{
			name: "no rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sheet.Convert(&sheet.Sheet{Name: "s", Rows: tt.rows})
			assert.Equal(t, tt.wantColumns, got.Columns)
			if len(tt.wantRecords) == 0 {
				assert.Empty(t, got.Records)
				return
			}
			assert.Equal(t, tt.wantRecords, got.Records)
		})
	}
}

func TestConvertNilSheet(t *testing.T) {
	assert.Empty(t, sheet.Convert(nil).Records)
}

func TestParser_XLSX(t *testing.T) {
	data := sheettest.XLSX(t,
		sheettest.Fixture{Name: "Land", Rows: [][]any{
			{"Name", "Age"},
			{"Alice", 30},
		}},
		sheettest.Fixture{Name: "Empty"},
	)

	wb, err := sheet.NewParser().Parse(data)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 2)

	assert.Equal(t, "Land", wb.Sheets[0].Name)
	assert.Equal(t, "Empty", wb.Sheets[1].Name)
	assert.Empty(t, wb.Sheets[1].Rows)

	conv := sheet.Convert(wb.Sheets[0])
	require.Len(t, conv.Records, 1)
	assert.Equal(t, sheet.Record{"Name": sheet.Text("Alice"), "Age": sheet.Number(30)}, conv.Records[0])
}

func TestParser_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"plain text", []byte("Name,Age\nAlice,30\n")},
		{"empty", nil},
		{"zip magic but corrupt", append([]byte{'P', 'K', 0x03, 0x04}, make([]byte, 64)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sheet.NewParser().Parse(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, sheet.ErrUnreadable), "got %v", err)
		})
	}
}

func TestParser_XLSXCellTypes(t *testing.T) {
	dateFmt := "dd/mm/yyyy"
	data := sheettest.XLSX(t, sheettest.Fixture{
		Name: "Parcels",
		Rows: [][]any{
			{"Parcel", "Area", "Share", "Owner ID", "Surveyed", "Registered", "Opens", "Active", "Code", "Comment"},
			{"P-001", 1234.5678, 0.25, "12345678901234567", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), 45000, 0.5, true, "007", "  3/15/24 "},
		},
		Styles: map[string]*excelize.Style{
			"B2": {NumFmt: 4},
			"C2": {NumFmt: 9},
			"F2": {CustomNumFmt: &dateFmt},
			"G2": {NumFmt: 20},
		},
	})

	wb, err := sheet.NewParser().Parse(data)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)

	conv := sheet.Convert(wb.Sheets[0])
	require.Len(t, conv.Records, 1)
	assert.Equal(t, sheet.Record{
		"Parcel":     sheet.Text("P-001"),
		"Area":       sheet.Number(1234.5678),
		"Share":      sheet.Number(0.25),
		"Owner ID":   sheet.Text("12345678901234567"),
		"Surveyed":   sheet.Value{Kind: sheet.KindDate, Text: "2024-03-15"},
		"Registered": sheet.Value{Kind: sheet.KindDate, Text: "2023-03-15"},
		"Opens":      sheet.Number(0.5),
		"Active":     sheet.Text("TRUE"),
		"Code":       sheet.Text("007"),
		"Comment":    sheet.Text("3/15/24"),
	}, conv.Records[0])
}

func TestParser_XLS(t *testing.T) {
	data, err := os.ReadFile("testdata/parcels.xls")
	require.NoError(t, err)

	wb, err := sheet.NewParser().Parse(data)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 3)

	require.NotNil(t, wb.Sheets[0])
	require.NotNil(t, wb.Sheets[1])
	assert.Equal(t, "Parcels", wb.Sheets[0].Name)
	assert.Equal(t, "Owners", wb.Sheets[1].Name)
	assert.Nil(t, wb.Sheets[2], "sheet whose substream offset is out of range")

	// Row 3 of Parcels holds no cells.
	require.Len(t, wb.Sheets[0].Rows, 5)
	assert.Empty(t, wb.Sheets[0].Rows[2])

	parcels := sheet.Convert(wb.Sheets[0])
	assert.Equal(t, []string{"Parcel", "Area", "Surveyed", "Registered", "Notes"}, parcels.Columns)
	require.Len(t, parcels.Records, 3)

	notes := parcels.Records[0]["Notes"]
	assert.Equal(t, sheet.KindText, notes.Kind)
	assert.True(t, strings.HasPrefix(notes.Text, "Łąka nad rzeką"))
	assert.Equal(t, 5999, utf8.RuneCountInString(notes.Text), "shared string spanning a CONTINUE record")
	delete(parcels.Records[0], "Notes")

	assert.Equal(t, sheet.Record{
		"Parcel":     sheet.Text("P-001"),
		"Area":       sheet.Number(1234.5678),
		"Surveyed":   sheet.Value{Kind: sheet.KindDate, Text: "2024-03-15"},
		"Registered": sheet.Value{Kind: sheet.KindDate, Text: "2023-03-15"},
	}, parcels.Records[0])
	assert.Equal(t, sheet.Record{
		"Parcel":     sheet.Text("007"),
		"Area":       sheet.Number(0.25),
		"Surveyed":   sheet.Value{Kind: sheet.KindDate, Text: "2024-03-15"},
		"Registered": sheet.Text("yes"),
		"Notes":      sheet.Text("TRUE"),
	}, parcels.Records[1])
	assert.Equal(t, sheet.Record{
		"Parcel":     sheet.Text("12345678901234567"),
		"Area":       sheet.Number(-12.5),
		"Surveyed":   sheet.Number(1234),
		"Registered": sheet.Number(7),
		"Notes":      sheet.Text("#DIV/0!"),
	}, parcels.Records[2])

	owners := sheet.Convert(wb.Sheets[1])
	assert.Equal(t, []sheet.Record{{"Name": sheet.Text("Łukasz"), "Owner ID": sheet.Number(42)}}, owners.Records)
}

func TestParser_XLSCorrupt(t *testing.T) {
	fixture, err := os.ReadFile("testdata/parcels.xls")
	require.NoError(t, err)

	corrupt := func(edit func(b []byte)) []byte {
		b := append([]byte(nil), fixture...)
		edit(b)
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"header only", fixture[:512]},
		{"directory chain past the FAT", corrupt(func(b []byte) {
			// Directory start sector.
			b[48], b[49], b[50], b[51] = 0x00, 0x10, 0x00, 0x00
		})},
		{"looping FAT", corrupt(func(b []byte) {
			// FAT entry 2 of the Workbook stream points at itself.
			b[512+8], b[512+9], b[512+10], b[512+11] = 0x02, 0x00, 0x00, 0x00
		})},
		{"DIFAT start without a count", corrupt(func(b []byte) {
			b[68], b[69], b[70], b[71] = 0x00, 0x00, 0x00, 0x00
		})},
		{"not BIFF8", corrupt(func(b []byte) {
			// Version field of the globals BOF record.
			b[512*3+4], b[512*3+5] = 0x00, 0x05
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sheet.NewParser().Parse(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, sheet.ErrUnreadable)
		})
	}
}
