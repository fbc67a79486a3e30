package sheet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf16"

	"github.com/extrame/ole2"
)

// Compound file layout. ole2 assumes 512-byte sectors.
const (
	cfbHeaderSize = 512
	cfbSectorSize = 512
	cfbMiniSize   = 64
)

// BIFF8 record identifiers.
const (
	recFormula    = 0x0006
	recEOF        = 0x000A
	recDateMode   = 0x0022
	recFilePass   = 0x002F
	recContinue   = 0x003C
	recBoundSheet = 0x0085
	recMulRK      = 0x00BD
	recXF         = 0x00E0
	recSST        = 0x00FC
	recLabelSST   = 0x00FD
	recNumber     = 0x0203
	recLabel      = 0x0204
	recBoolErr    = 0x0205
	recString     = 0x0207
	recRK         = 0x027E
	recFormat     = 0x041E
	recBOF        = 0x0809

	biff8Version = 0x0600
)

var (
	errTruncated    = errors.New("truncated record")
	errCorruptChain = errors.New("corrupt sector chain")
)

var le = binary.LittleEndian

var xlsErrorCodes = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
}

func parseXLS(data []byte) (*Workbook, error) {
	stream, err := workbookStream(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	book, err := readGlobals(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	wb := &Workbook{Sheets: make([]*Sheet, 0, len(book.sheets))}
	for _, bs := range book.sheets {
		rows, err := book.readSheet(stream, bs.offset)
		if err != nil {
			// Keep the slot so callers can report the sheet as missing.
			wb.Sheets = append(wb.Sheets, nil)
			continue
		}
		wb.Sheets = append(wb.Sheets, &Sheet{Name: bs.name, Rows: rows})
	}

	return wb, nil
}

// workbookStream returns the "Workbook" stream of a compound file. Every
// chain ole2 will follow is checked first: it indexes its sector tables
// without bounds checks and exits the process on a bad chain.
func workbookStream(data []byte) ([]byte, error) {
	if len(data) < cfbHeaderSize {
		return nil, errors.New("short compound file header")
	}
	if shift := le.Uint16(data[30:]); shift != 9 {
		return nil, fmt.Errorf("unsupported sector size 1<<%d", shift)
	}

	sectors := uint32((len(data) - cfbHeaderSize + cfbSectorSize - 1) / cfbSectorSize)
	if miniFATSectors := le.Uint32(data[64:]); miniFATSectors > sectors {
		return nil, errors.New("mini FAT larger than the file")
	}

	difStart, difCount := le.Uint32(data[68:]), le.Uint32(data[72:])
	if difCount == 0 && difStart == ole2.FREESECT {
		// Some writers mark an absent DIFAT as free instead of ending it.
		data = append([]byte(nil), data...)
		le.PutUint32(data[68:], ole2.ENDOFCHAIN)
	} else if err := checkDIFAT(data, difStart, difCount, sectors); err != nil {
		return nil, err
	}

	ole, err := ole2.Open(bytes.NewReader(data), "")
	if err != nil {
		return nil, err
	}

	if _, err := chainLen(ole.SecID, le.Uint32(data[48:])); err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	dir, err := ole.ListDir()
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}

	var root, book *ole2.File
	for _, f := range dir {
		switch name := entryName(f); {
		case f.Type == ole2.ROOT && root == nil:
			root = f
		case f.Type == ole2.USERSTREAM && name == "Workbook":
			book = f
		case f.Type == ole2.USERSTREAM && name == "Book" && book == nil:
			return nil, errors.New("BIFF5 workbooks are not supported")
		}
	}
	if root == nil || book == nil {
		return nil, errors.New("no Workbook stream")
	}

	// Streams below the cutoff live in the mini stream held by the root.
	cutoff := le.Uint32(data[56:])
	var capacity int
	if book.Size < cutoff {
		if _, err := chainLen(ole.SecID, root.Sstart); err != nil {
			return nil, fmt.Errorf("mini stream: %w", err)
		}
		n, err := chainLen(ole.SSecID, book.Sstart)
		if err != nil {
			return nil, fmt.Errorf("workbook stream: %w", err)
		}
		capacity = n * cfbMiniSize
	} else {
		n, err := chainLen(ole.SecID, book.Sstart)
		if err != nil {
			return nil, fmt.Errorf("workbook stream: %w", err)
		}
		capacity = n * cfbSectorSize
	}
	if int64(book.Size) > int64(capacity) {
		return nil, errors.New("workbook stream is longer than its chain")
	}

	stream := make([]byte, book.Size)
	if _, err := io.ReadFull(ole.OpenFile(book, root), stream); err != nil {
		return nil, fmt.Errorf("read workbook stream: %w", err)
	}
	return stream, nil
}

func checkDIFAT(data []byte, sid, count, sectors uint32) error {
	for i := uint32(0); sid != ole2.ENDOFCHAIN; i++ {
		if i >= count || sid >= sectors {
			return fmt.Errorf("DIFAT: %w", errCorruptChain)
		}
		next := cfbHeaderSize + int(sid)*cfbSectorSize + cfbSectorSize - 4
		if next+4 > len(data) {
			return fmt.Errorf("DIFAT: %w", errCorruptChain)
		}
		sid = le.Uint32(data[next:])
	}
	return nil
}

// chainLen follows a sector chain to its end and returns its length.
func chainLen(table []uint32, start uint32) (int, error) {
	n := 0
	for sid := start; sid != ole2.ENDOFCHAIN; sid = table[sid] {
		if int(sid) >= len(table) || n >= len(table) {
			return 0, errCorruptChain
		}
		n++
	}
	return n, nil
}

func entryName(f *ole2.File) string {
	if f.Bsize < 2 || int(f.Bsize) > 2*len(f.NameBts) {
		return ""
	}
	return f.Name()
}

// biffStream walks the records of a BIFF8 substream.
type biffStream struct {
	b   []byte
	pos int
}

type biffRecord struct {
	id   uint16
	data []byte
}

func (s *biffStream) next() (biffRecord, bool) {
	if s.pos+4 > len(s.b) {
		return biffRecord{}, false
	}
	id := le.Uint16(s.b[s.pos:])
	end := s.pos + 4 + int(le.Uint16(s.b[s.pos+2:]))
	if end > len(s.b) {
		return biffRecord{}, false
	}
	rec := biffRecord{id: id, data: s.b[s.pos+4 : end]}
	s.pos = end
	return rec, true
}

func (s *biffStream) peek() uint16 {
	if s.pos+4 > len(s.b) {
		return 0
	}
	return le.Uint16(s.b[s.pos:])
}

func (s *biffStream) bof() error {
	rec, ok := s.next()
	if !ok || rec.id != recBOF || len(rec.data) < 4 {
		return errors.New("missing BOF record")
	}
	if v := le.Uint16(rec.data); v != biff8Version {
		return fmt.Errorf("unsupported BIFF version %#04x", v)
	}
	return nil
}

type boundSheet struct {
	name   string
	offset uint32
}

// xlsBook is what the globals substream says about the cells that follow.
type xlsBook struct {
	sheets   []boundSheet
	sst      []string
	xfFormat []uint16
	formats  map[uint16]string
	date1904 bool
}

func readGlobals(stream []byte) (*xlsBook, error) {
	s := &biffStream{b: stream}
	if err := s.bof(); err != nil {
		return nil, err
	}

	book := &xlsBook{formats: make(map[uint16]string)}
	for {
		rec, ok := s.next()
		if !ok {
			return nil, errors.New("globals substream is truncated")
		}

		switch rec.id {
		case recEOF:
			return book, nil
		case recFilePass:
			return nil, errors.New("workbook is encrypted")
		case recBoundSheet:
			if len(rec.data) < 6 {
				return nil, errTruncated
			}
			name, err := decodeXLString(rec.data[6:], 1)
			if err != nil {
				return nil, fmt.Errorf("sheet name: %w", err)
			}
			book.sheets = append(book.sheets, boundSheet{name: name, offset: le.Uint32(rec.data)})
		case recSST:
			segs := [][]byte{rec.data}
			for s.peek() == recContinue {
				cont, _ := s.next()
				segs = append(segs, cont.data)
			}
			sst, err := readSST(segs)
			if err != nil {
				return nil, fmt.Errorf("shared strings: %w", err)
			}
			book.sst = sst
		case recXF:
			if len(rec.data) < 4 {
				return nil, errTruncated
			}
			book.xfFormat = append(book.xfFormat, le.Uint16(rec.data[2:]))
		case recFormat:
			if len(rec.data) < 2 {
				return nil, errTruncated
			}
			code, err := decodeXLString(rec.data[2:], 2)
			if err != nil {
				return nil, fmt.Errorf("number format: %w", err)
			}
			book.formats[le.Uint16(rec.data)] = code
		case recDateMode:
			book.date1904 = len(rec.data) >= 2 && le.Uint16(rec.data) == 1
		}
	}
}

// readSheet reads the cell table of the substream at offset. Records of
// substreams nested inside it, such as embedded charts, are skipped.
func (b *xlsBook) readSheet(stream []byte, offset uint32) ([][]Value, error) {
	if int64(offset) >= int64(len(stream)) {
		return nil, errors.New("sheet offset outside the workbook stream")
	}
	s := &biffStream{b: stream, pos: int(offset)}
	if err := s.bof(); err != nil {
		return nil, err
	}

	var (
		g       grid
		pending = -1
		pendRow int
		depth   = 1
	)
	for depth > 0 {
		rec, ok := s.next()
		if !ok {
			return nil, errors.New("sheet substream is truncated")
		}
		switch rec.id {
		case recBOF:
			depth++
			continue
		case recEOF:
			depth--
			continue
		}
		if depth > 1 {
			continue
		}

		d := rec.data
		if rec.id == recString {
			if pending >= 0 {
				text, err := decodeXLString(d, 2)
				if err != nil {
					return nil, err
				}
				g.set(pendRow, pending, cellText(text))
				pending = -1
			}
			continue
		}
		if len(d) < 4 {
			continue
		}
		row, col := int(le.Uint16(d)), int(le.Uint16(d[2:]))
		switch rec.id {
		case recLabelSST:
			if len(d) < 10 {
				return nil, errTruncated
			}
			if i := le.Uint32(d[6:]); int64(i) < int64(len(b.sst)) {
				g.set(row, col, cellText(b.sst[i]))
			}
		case recLabel:
			if len(d) < 6 {
				return nil, errTruncated
			}
			text, err := decodeXLString(d[6:], 2)
			if err != nil {
				return nil, err
			}
			g.set(row, col, cellText(text))
		case recNumber:
			if len(d) < 14 {
				return nil, errTruncated
			}
			g.set(row, col, b.number(le.Uint16(d[4:]), math.Float64frombits(le.Uint64(d[6:]))))
		case recRK:
			if len(d) < 10 {
				return nil, errTruncated
			}
			g.set(row, col, b.number(le.Uint16(d[4:]), rkValue(le.Uint32(d[6:]))))
		case recMulRK:
			if len(d) < 6 {
				return nil, errTruncated
			}
			for i := 0; 4+6*i+6 <= len(d)-2; i++ {
				cell := d[4+6*i:]
				g.set(row, col+i, b.number(le.Uint16(cell), rkValue(le.Uint32(cell[2:]))))
			}
		case recBoolErr:
			if len(d) < 8 {
				return nil, errTruncated
			}
			g.set(row, col, boolErr(d[6], d[7]))
		case recFormula:
			if len(d) < 14 {
				return nil, errTruncated
			}
			v, isString := b.formula(d)
			if isString {
				pendRow, pending = row, col
				continue
			}
			g.set(row, col, v)
		}
	}
	return g.rows, nil
}

func (b *xlsBook) number(ixfe uint16, f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Empty()
	}
	if b.isDateXF(ixfe) {
		if v, ok := serialDate(f, b.date1904); ok {
			return v
		}
	}
	return Number(f)
}

func (b *xlsBook) isDateXF(ixfe uint16) bool {
	if int(ixfe) >= len(b.xfFormat) {
		return false
	}
	ifmt := b.xfFormat[ixfe]
	if code, ok := b.formats[ifmt]; ok {
		return isDateFormatCode(code)
	}
	return isDateFormatID(int(ifmt))
}

// formula returns the cached result of a FORMULA record. A string result
// arrives in the STRING record that follows.
func (b *xlsBook) formula(d []byte) (Value, bool) {
	res := d[6:14]
	if res[6] != 0xFF || res[7] != 0xFF {
		return b.number(le.Uint16(d[4:]), math.Float64frombits(le.Uint64(res))), false
	}
	switch res[0] {
	case 0:
		return Value{}, true
	case 1:
		return boolText(res[2] != 0), false
	case 2:
		return errorText(res[2]), false
	}
	return Empty(), false
}

func boolErr(v, isErr byte) Value {
	if isErr != 0 {
		return errorText(v)
	}
	return boolText(v != 0)
}

func errorText(code byte) Value {
	if s, ok := xlsErrorCodes[code]; ok {
		return Text(s)
	}
	return Text("#ERROR!")
}

// rkValue decodes an RK number: 30 significant bits holding either a signed
// integer or the top of an IEEE double, optionally scaled by 100.
func rkValue(rk uint32) float64 {
	var f float64
	if rk&0x02 != 0 {
		f = float64(int32(rk) >> 2)
	} else {
		f = math.Float64frombits(uint64(rk&^0x03) << 32)
	}
	if rk&0x01 != 0 {
		f /= 100
	}
	return f
}

// grid collects cells into rows. Rows without data stay nil.
type grid struct {
	rows [][]Value
}

func (g *grid) set(row, col int, v Value) {
	if v.IsEmpty() {
		return
	}
	for len(g.rows) <= row {
		g.rows = append(g.rows, nil)
	}
	r := g.rows[row]
	for len(r) <= col {
		r = append(r, Empty())
	}
	r[col] = v
	g.rows[row] = r
}

// decodeXLString decodes a string prefixed by its character count (one or
// two bytes wide) and an option byte.
func decodeXLString(b []byte, countWidth int) (string, error) {
	if len(b) < countWidth+1 {
		return "", errTruncated
	}
	cch := int(b[0])
	if countWidth == 2 {
		cch = int(le.Uint16(b))
	}
	return decodeChars(b[countWidth+1:], cch, b[countWidth]&0x01 != 0)
}

// decodeChars decodes cch characters stored either as UTF-16LE or, when
// compressed, as their low bytes.
func decodeChars(b []byte, cch int, wide bool) (string, error) {
	u := make([]uint16, cch)
	if wide {
		if len(b) < 2*cch {
			return "", errTruncated
		}
		for i := range u {
			u[i] = le.Uint16(b[2*i:])
		}
	} else {
		if len(b) < cch {
			return "", errTruncated
		}
		for i := range u {
			u[i] = uint16(b[i])
		}
	}
	return string(utf16.Decode(u)), nil
}

// sstReader reads the shared string table across its CONTINUE records.
type sstReader struct {
	segs [][]byte
	seg  int
	off  int
}

func readSST(segs [][]byte) ([]string, error) {
	r := &sstReader{segs: segs}
	head, err := r.bytes(8)
	if err != nil {
		return nil, err
	}

	unique := int(le.Uint32(head[4:]))
	var size int
	for _, s := range segs {
		size += len(s)
	}
	// Every entry takes at least three bytes.
	sst := make([]string, 0, min(unique, size/3))

	for range unique {
		h, err := r.bytes(3)
		if err != nil {
			return nil, err
		}
		cch, flags := int(le.Uint16(h)), h[2]

		var skip int
		if flags&0x08 != 0 {
			runs, err := r.bytes(2)
			if err != nil {
				return nil, err
			}
			skip += 4 * int(le.Uint16(runs))
		}
		if flags&0x04 != 0 {
			ext, err := r.bytes(4)
			if err != nil {
				return nil, err
			}
			skip += int(le.Uint32(ext))
		}

		s, err := r.chars(cch, flags&0x01 != 0)
		if err != nil {
			return nil, err
		}
		if err := r.skip(skip); err != nil {
			return nil, err
		}
		sst = append(sst, s)
	}
	return sst, nil
}

func (r *sstReader) bytes(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		if r.seg >= len(r.segs) {
			return nil, errTruncated
		}
		cur := r.segs[r.seg]
		if r.off >= len(cur) {
			r.seg, r.off = r.seg+1, 0
			continue
		}
		k := min(n-len(out), len(cur)-r.off)
		out = append(out, cur[r.off:r.off+k]...)
		r.off += k
	}
	return out, nil
}

func (r *sstReader) skip(n int) error {
	for n > 0 {
		if r.seg >= len(r.segs) {
			return errTruncated
		}
		cur := r.segs[r.seg]
		if r.off >= len(cur) {
			r.seg, r.off = r.seg+1, 0
			continue
		}
		k := min(n, len(cur)-r.off)
		r.off += k
		n -= k
	}
	return nil
}

// chars reads cch characters. When they run past the end of a record the
// next one starts with a fresh option byte that may change their width.
func (r *sstReader) chars(cch int, wide bool) (string, error) {
	u := make([]uint16, 0, min(cch, 1<<12))
	for len(u) < cch {
		if r.seg >= len(r.segs) {
			return "", errTruncated
		}
		cur := r.segs[r.seg]
		if r.off >= len(cur) {
			r.seg, r.off = r.seg+1, 0
			if r.seg >= len(r.segs) || len(r.segs[r.seg]) == 0 {
				return "", errTruncated
			}
			wide = r.segs[r.seg][0]&0x01 != 0
			r.off = 1
			continue
		}
		if wide {
			if r.off+2 > len(cur) {
				return "", errTruncated
			}
			u = append(u, le.Uint16(cur[r.off:]))
			r.off += 2
		} else {
			u = append(u, uint16(cur[r.off]))
			r.off++
		}
	}
	return string(utf16.Decode(u)), nil
}
