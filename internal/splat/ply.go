package splat

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/monitoring"
)

// Format is a PLY body encoding.
type Format string

const (
	FormatASCII        Format = "ascii"
	FormatBinaryLittle Format = "binary_little_endian"
	FormatBinaryBig    Format = "binary_big_endian"
)

// ParseFormat accepts the three PLY 1.0 encodings.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatASCII, FormatBinaryLittle, FormatBinaryBig:
		return f, nil
	}
	return "", fmt.Errorf("%w: unsupported PLY format %q", georef.ErrValidation, s)
}

func (f Format) byteOrder() binary.ByteOrder {
	if f == FormatBinaryBig {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

const (
	maxHeaderLines = 4096
	// preallocRecords caps the up-front column allocation so a bogus element
	// count in the header cannot exhaust memory before the body is read.
	preallocRecords = 1 << 16
)

var integerRange = map[PropertyType][2]float64{
	TypeChar:   {math.MinInt8, math.MaxInt8},
	TypeUchar:  {0, math.MaxUint8},
	TypeShort:  {math.MinInt16, math.MaxInt16},
	TypeUshort: {0, math.MaxUint16},
	TypeInt:    {math.MinInt32, math.MaxInt32},
	TypeUint:   {0, math.MaxUint32},
}

type plyHeader struct {
	format   Format
	comments []string
	objInfo  []string
	elements []headerElement
}

type headerElement struct {
	name   string
	count  int
	fields []Field
}

// ReadPLY decodes a PLY stream. The vertex element is required; other
// elements must have scalar properties only and are kept in Cloud.Extra.
func ReadPLY(r io.Reader) (*Cloud, error) {
	br := bufio.NewReader(r)
	hdr, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	var columns [][][]float64
	if hdr.format == FormatASCII {
		columns, err = readASCIIBody(br, hdr.elements)
	} else {
		columns, err = readBinaryBody(br, hdr.format.byteOrder(), hdr.elements)
	}
	if err != nil {
		return nil, err
	}

	c := &Cloud{
		Format:      hdr.format,
		Comments:    hdr.comments,
		ObjInfo:     hdr.objInfo,
		VertexIndex: -1,
	}
	for i, e := range hdr.elements {
		if e.name != "vertex" {
			c.Extra = append(c.Extra, Element{Name: e.name, Fields: e.fields, Columns: columns[i]})
			continue
		}
		if c.VertexIndex >= 0 {
			return nil, fmt.Errorf("%w: PLY declares more than one vertex element", georef.ErrValidation)
		}
		c.Fields = e.fields
		c.Columns = columns[i]
		c.VertexIndex = len(c.Extra)
	}
	if c.VertexIndex < 0 {
		return nil, fmt.Errorf("%w: PLY has no vertex element", georef.ErrMissingField)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func readHeader(br *bufio.Reader) (plyHeader, error) {
	var hdr plyHeader

	magic, err := br.ReadString('\n')
	if err != nil || strings.TrimRight(magic, "\r\n") != "ply" {
		return hdr, fmt.Errorf("%w: not a PLY file", georef.ErrValidation)
	}

	for n := 0; n < maxHeaderLines; n++ {
		raw, err := br.ReadString('\n')
		if err != nil {
			return hdr, fmt.Errorf("%w: truncated PLY header: %v", georef.ErrValidation, err)
		}
		line := strings.TrimRight(raw, "\r\n")
		keyword, rest, _ := strings.Cut(strings.TrimLeft(line, " \t"), " ")

		switch keyword {
		case "":
			continue
		case "format":
			parts := strings.Fields(rest)
			if len(parts) != 2 || parts[1] != "1.0" {
				return hdr, fmt.Errorf("%w: bad format line %q", georef.ErrValidation, line)
			}
			if hdr.format, err = ParseFormat(parts[0]); err != nil {
				return hdr, err
			}
		case "comment":
			hdr.comments = append(hdr.comments, rest)
		case "obj_info":
			hdr.objInfo = append(hdr.objInfo, rest)
		case "element":
			parts := strings.Fields(rest)
			if len(parts) != 2 {
				return hdr, fmt.Errorf("%w: bad element line %q", georef.ErrValidation, line)
			}
			count, err := strconv.Atoi(parts[1])
			if err != nil || count < 0 {
				return hdr, fmt.Errorf("%w: bad element count in %q", georef.ErrValidation, line)
			}
			hdr.elements = append(hdr.elements, headerElement{name: parts[0], count: count})
		case "property":
			if len(hdr.elements) == 0 {
				return hdr, fmt.Errorf("%w: property declared before any element", georef.ErrValidation)
			}
			el := &hdr.elements[len(hdr.elements)-1]
			parts := strings.Fields(rest)
			if len(parts) > 0 && parts[0] == "list" {
				return hdr, fmt.Errorf("%w: list property on element %q is not supported", georef.ErrValidation, el.name)
			}
			if len(parts) != 2 {
				return hdr, fmt.Errorf("%w: bad property line %q", georef.ErrValidation, line)
			}
			typ, err := ParsePropertyType(parts[0])
			if err != nil {
				return hdr, err
			}
			el.fields = append(el.fields, NewField(parts[1], typ))
		case "end_header":
			if hdr.format == "" {
				return hdr, fmt.Errorf("%w: PLY header has no format line", georef.ErrValidation)
			}
			for _, e := range hdr.elements {
				if len(e.fields) == 0 && e.count > 0 {
					return hdr, fmt.Errorf("%w: element %q has records but no properties", georef.ErrValidation, e.name)
				}
			}
			return hdr, nil
		default:
			return hdr, fmt.Errorf("%w: unexpected PLY header line %q", georef.ErrValidation, line)
		}
	}
	return hdr, fmt.Errorf("%w: PLY header exceeds %d lines", georef.ErrValidation, maxHeaderLines)
}

func newColumns(e headerElement) [][]float64 {
	cols := make([][]float64, len(e.fields))
	for i := range cols {
		cols[i] = make([]float64, 0, min(e.count, preallocRecords))
	}
	return cols
}

func readBinaryBody(r io.Reader, order binary.ByteOrder, elements []headerElement) ([][][]float64, error) {
	out := make([][][]float64, len(elements))
	for ei, e := range elements {
		size := 0
		for _, f := range e.fields {
			size += f.Type.Size()
		}
		cols := newColumns(e)
		buf := make([]byte, size)
		for n := 0; n < e.count; n++ {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("%w: %s record %d of %d: %v", georef.ErrValidation, e.name, n, e.count, err)
			}
			off := 0
			for i, f := range e.fields {
				cols[i] = append(cols[i], decodeBinary(buf[off:], f.Type, order))
				off += f.Type.Size()
			}
		}
		out[ei] = cols
	}
	return out, nil
}

func readASCIIBody(r io.Reader, elements []headerElement) ([][][]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	out := make([][][]float64, len(elements))
	for ei, e := range elements {
		cols := newColumns(e)
		for n := 0; n < e.count; n++ {
			for i, f := range e.fields {
				if !sc.Scan() {
					return nil, fmt.Errorf("%w: %s record %d of %d is truncated: %v", georef.ErrValidation, e.name, n, e.count, sc.Err())
				}
				v, err := parseASCII(sc.Text(), f.Type)
				if err != nil {
					return nil, fmt.Errorf("%s.%s record %d: %w", e.name, f.Name, n, err)
				}
				cols[i] = append(cols[i], v)
			}
		}
		out[ei] = cols
	}
	return out, nil
}

func parseASCII(tok string, t PropertyType) (float64, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s value %q", georef.ErrValidation, t, tok)
	}
	switch {
	case t == TypeFloat:
		return float64(float32(v)), nil
	case t.IsInteger():
		iv, err := toInteger(v, t)
		return float64(iv), err
	}
	return v, nil
}

func decodeBinary(b []byte, t PropertyType, order binary.ByteOrder) float64 {
	switch t {
	case TypeChar:
		return float64(int8(b[0]))
	case TypeUchar:
		return float64(b[0])
	case TypeShort:
		return float64(int16(order.Uint16(b)))
	case TypeUshort:
		return float64(order.Uint16(b))
	case TypeInt:
		return float64(int32(order.Uint32(b)))
	case TypeUint:
		return float64(order.Uint32(b))
	case TypeFloat:
		return float32BitsToFloat64(order.Uint32(b))
	default:
		return math.Float64frombits(order.Uint64(b))
	}
}

// NaN layout shared by the float32 <-> float64 helpers below.
const (
	f32Exp       = 0x7f800000
	f32Mant      = 0x007fffff
	f32Quiet     = 0x00400000
	f64Exp       = 0x7ff0000000000000
	f64Mant      = 0x000fffffffffffff
	mantissaGap  = 52 - 23
	f32SignShift = 31
	f64SignShift = 63
)

// float32BitsToFloat64 widens a float32 bit pattern. NaNs are moved across by
// hand so their sign, quiet bit and payload survive; a hardware conversion
// would quiet a signalling NaN.
func float32BitsToFloat64(bits uint32) float64 {
	if bits&f32Exp == f32Exp && bits&f32Mant != 0 {
		sign := uint64(bits>>f32SignShift) << f64SignShift
		return math.Float64frombits(sign | f64Exp | uint64(bits&f32Mant)<<mantissaGap)
	}
	return float64(math.Float32frombits(bits))
}

// float64ToFloat32Bits narrows v to float32 bits, inverting
// float32BitsToFloat64 exactly for NaNs it produced.
func float64ToFloat32Bits(v float64) uint32 {
	if !math.IsNaN(v) {
		return math.Float32bits(float32(v))
	}
	bits := math.Float64bits(v)
	mant := uint32((bits & f64Mant) >> mantissaGap)
	if mant == 0 {
		mant = f32Quiet
	}
	return uint32(bits>>f64SignShift)<<f32SignShift | f32Exp | mant
}

// toInteger rounds v to the nearest integer and checks it fits t.
func toInteger(v float64, t PropertyType) (int64, error) {
	r := math.Round(v)
	lim := integerRange[t]
	if math.IsNaN(r) || r < lim[0] || r > lim[1] {
		return 0, fmt.Errorf("%w: value %v out of range for %s", georef.ErrValidation, v, t)
	}
	return int64(r), nil
}

func encodeBinary(b []byte, v float64, t PropertyType, order binary.ByteOrder) error {
	switch t {
	case TypeFloat:
		order.PutUint32(b, float64ToFloat32Bits(v))
		return nil
	case TypeDouble:
		order.PutUint64(b, math.Float64bits(v))
		return nil
	}
	iv, err := toInteger(v, t)
	if err != nil {
		return err
	}
	switch t.Size() {
	case 1:
		b[0] = byte(iv)
	case 2:
		order.PutUint16(b, uint16(iv))
	default:
		order.PutUint32(b, uint32(iv))
	}
	return nil
}

func formatASCII(v float64, t PropertyType) (string, error) {
	switch t {
	case TypeFloat:
		return strconv.FormatFloat(v, 'g', -1, 32), nil
	case TypeDouble:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
	iv, err := toInteger(v, t)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(iv, 10), nil
}

// elements returns every element in file order with the vertex element at
// VertexIndex.
func (c *Cloud) elements() []Element {
	out := make([]Element, 0, len(c.Extra)+1)
	out = append(out, c.Extra[:c.VertexIndex]...)
	out = append(out, Element{Name: "vertex", Fields: c.Fields, Columns: c.Columns})
	return append(out, c.Extra[c.VertexIndex:]...)
}

// WritePLY encodes c. An empty format means c.Format, and binary little
// endian when that is unset too. Values are converted to each property's
// declared type; integer properties are rounded and range checked.
func WritePLY(w io.Writer, c *Cloud, format Format) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if format == "" {
		format = c.Format
	}
	if format == "" {
		format = FormatBinaryLittle
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	elements := c.elements()

	fmt.Fprintf(bw, "ply\nformat %s 1.0\n", format)
	for _, s := range c.Comments {
		fmt.Fprintf(bw, "comment %s\n", s)
	}
	for _, s := range c.ObjInfo {
		fmt.Fprintf(bw, "obj_info %s\n", s)
	}
	for _, e := range elements {
		fmt.Fprintf(bw, "element %s %d\n", e.Name, e.Len())
		for _, f := range e.Fields {
			fmt.Fprintf(bw, "property %s %s\n", f.Type, f.Name)
		}
	}
	bw.WriteString("end_header\n")

	var err error
	if format == FormatASCII {
		err = writeASCIIBody(bw, elements)
	} else {
		err = writeBinaryBody(bw, format.byteOrder(), elements)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

func writeBinaryBody(w io.Writer, order binary.ByteOrder, elements []Element) error {
	for _, e := range elements {
		size := 0
		for _, f := range e.Fields {
			size += f.Type.Size()
		}
		buf := make([]byte, size)
		for n := 0; n < e.Len(); n++ {
			off := 0
			for i, f := range e.Fields {
				if err := encodeBinary(buf[off:], e.Columns[i][n], f.Type, order); err != nil {
					return fmt.Errorf("%s.%s record %d: %w", e.Name, f.Name, n, err)
				}
				off += f.Type.Size()
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeASCIIBody(w *bufio.Writer, elements []Element) error {
	for _, e := range elements {
		for n := 0; n < e.Len(); n++ {
			for i, f := range e.Fields {
				s, err := formatASCII(e.Columns[i][n], f.Type)
				if err != nil {
					return fmt.Errorf("%s.%s record %d: %w", e.Name, f.Name, n, err)
				}
				if i > 0 {
					w.WriteByte(' ')
				}
				w.WriteString(s)
			}
			w.WriteByte('\n')
		}
	}
	return nil
}

// ReadPLYFile reads a PLY file through fsys.
func ReadPLYFile(fsys fsutil.FileSystem, path string) (*Cloud, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := ReadPLY(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	monitoring.Logf("splat: read %d splats with %d fields (%s) from %s", c.Len(), len(c.Fields), c.Format, path)
	return c, nil
}

// WritePLYFile encodes c fully in memory and then writes it to path, so a
// failed conversion leaves no partial file behind.
func WritePLYFile(fsys fsutil.FileSystem, path string, c *Cloud, format Format) error {
	var buf bytes.Buffer
	if err := WritePLY(&buf, c, format); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := fsutil.WriteFileAtomic(fsys, path, buf.Bytes(), 0644); err != nil {
		return err
	}
	monitoring.Logf("splat: wrote %d splats (%d bytes) to %s", c.Len(), buf.Len(), path)
	return nil
}
