package splat

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/monitoring"
	"github.com/banshee-data/splatgeo/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// mixedCloud exercises every scalar type with values that survive each one.
func mixedCloud() *Cloud {
	c := NewCloud([]Field{
		{Name: "x", Type: TypeDouble},
		{Name: "y", Type: TypeDouble},
		{Name: "z", Type: TypeDouble},
		{Name: "scale_0", Type: TypeFloat},
		{Name: "red", Type: TypeUchar},
		{Name: "label", Type: TypeChar},
		{Name: "seg", Type: TypeShort},
		{Name: "tile", Type: TypeUshort},
		{Name: "id", Type: TypeInt},
		{Name: "flags", Type: TypeUint},
	}, 3)
	rows := [][]float64{
		{1.5, -2.25, 1e6 + 0.125, 0.5, 255, -128, -32768, 65535, -2147483648, 4294967295},
		{0, 0, 0, float64(float32(0.1)), 0, 127, 32767, 0, 2147483647, 0},
		{-6378137.123456789, 4.2e-9, 3, -3.75, 17, 0, 12, 40000, 7, 123456},
	}
	for i, row := range rows {
		for fi, v := range row {
			c.Columns[fi][i] = v
		}
	}
	c.Comments = []string{"generated by test", ""}
	c.ObjInfo = []string{"num_cols 3"}
	c.Extra = []Element{{
		Name:    "camera",
		Fields:  []Field{NewField("focal", TypeFloat), NewField("index", TypeUchar)},
		Columns: [][]float64{{35, 50}, {0, 1}},
	}}
	c.VertexIndex = 1
	return c
}

func TestPLY_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatASCII, FormatBinaryLittle, FormatBinaryBig} {
		t.Run(string(format), func(t *testing.T) {
			in := mixedCloud()
			var buf bytes.Buffer
			require.NoError(t, WritePLY(&buf, in, format))

			out, err := ReadPLY(&buf)
			require.NoError(t, err)

			assert.Equal(t, format, out.Format)
			assert.Equal(t, in.Fields, out.Fields)
			assert.Equal(t, in.Columns, out.Columns)
			assert.Equal(t, in.Comments, out.Comments)
			assert.Equal(t, in.ObjInfo, out.ObjInfo)
			assert.Equal(t, in.VertexIndex, out.VertexIndex)
			require.Len(t, out.Extra, 1)
			assert.Equal(t, in.Extra[0].Columns, out.Extra[0].Columns)
		})
	}
}

func TestPLY_HeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePLY(&buf, mixedCloud(), FormatASCII))

	header, _, ok := strings.Cut(buf.String(), "end_header\n")
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(header), "\n")

	assert.Equal(t, "ply", lines[0])
	assert.Equal(t, "format ascii 1.0", lines[1])
	assert.Equal(t, "comment generated by test", lines[2])
	assert.Contains(t, header, "obj_info num_cols 3\n")
	// camera precedes vertex because VertexIndex is 1
	assert.Less(t, strings.Index(header, "element camera 2"), strings.Index(header, "element vertex 3"))
	assert.Contains(t, header, "property uchar red\n")
}

func TestWritePLY_FloatPrecision(t *testing.T) {
	c := NewCloud([]Field{{Name: "x", Type: TypeFloat}, {Name: "y", Type: TypeFloat}, {Name: "z", Type: TypeFloat}}, 1)
	c.Columns[0][0] = 0.1 // not representable as float32

	var buf bytes.Buffer
	require.NoError(t, WritePLY(&buf, c, FormatBinaryLittle))
	out, err := ReadPLY(&buf)
	require.NoError(t, err)

	assert.Equal(t, float64(float32(0.1)), out.Columns[0][0])
}

func TestWritePLY_IntegerOverflow(t *testing.T) {
	c := NewCloud([]Field{{Name: "red", Type: TypeUchar}}, 1)
	c.Columns[0][0] = 300

	for _, format := range []Format{FormatASCII, FormatBinaryLittle} {
		err := WritePLY(&bytes.Buffer{}, c, format)
		testutil.AssertErrorIs(t, err, georef.ErrValidation)
	}
}

func TestWritePLY_DefaultFormat(t *testing.T) {
	c := NewCloud([]Field{{Name: "x", Type: TypeFloat}}, 0)

	var buf bytes.Buffer
	require.NoError(t, WritePLY(&buf, c, ""))
	assert.Contains(t, buf.String(), "format binary_little_endian 1.0\n")

	c.Format = FormatASCII
	buf.Reset()
	require.NoError(t, WritePLY(&buf, c, ""))
	assert.Contains(t, buf.String(), "format ascii 1.0\n")

	err := WritePLY(&bytes.Buffer{}, c, "binary_middle_endian")
	testutil.AssertErrorIs(t, err, georef.ErrValidation)
}

func TestReadPLY_ASCII(t *testing.T) {
	src := "ply\r\n" +
		"format ascii 1.0\r\n" +
		"comment made by hand\r\n" +
		"element vertex 2\r\n" +
		"property float x\r\n" +
		"property float y\r\n" +
		"property float z\r\n" +
		"property float32 scale_0\r\n" +
		"property uint8 red\r\n" +
		"end_header\r\n" +
		"1 2 3 -4.5 200\r\n" +
		"0.5 0.25\n0.125 1 7\n"

	c, err := ReadPLY(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"made by hand"}, c.Comments)
	assert.Equal(t, TypeFloat, c.Fields[3].Type)
	assert.Equal(t, RoleScaleLike, c.Fields[3].Role)
	assert.Equal(t, TypeUchar, c.Fields[4].Type)
	assert.Equal(t, []float64{-4.5, 1}, c.Columns[3])
	assert.Equal(t, []float64{200, 7}, c.Columns[4])
}

func TestReadPLY_BinaryBigEndian(t *testing.T) {
	var body bytes.Buffer
	for _, v := range []float32{1, -2, 3.5} {
		binary.Write(&body, binary.BigEndian, v)
	}
	binary.Write(&body, binary.BigEndian, int16(-7))

	src := "ply\nformat binary_big_endian 1.0\nelement vertex 1\n" +
		"property float x\nproperty float y\nproperty float z\nproperty short seg\nend_header\n"

	c, err := ReadPLY(plyBytes(src, body.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, []float64{1}, c.Columns[0])
	assert.Equal(t, []float64{-2}, c.Columns[1])
	assert.Equal(t, []float64{3.5}, c.Columns[2])
	assert.Equal(t, []float64{-7}, c.Columns[3])
}

func plyBytes(header string, body []byte) *bytes.Reader {
	return bytes.NewReader(append([]byte(header), body...))
}

func TestReadPLY_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"not ply", "obj\n", georef.ErrValidation},
		{"no format", "ply\nelement vertex 0\nend_header\n", georef.ErrValidation},
		{"bad version", "ply\nformat ascii 2.0\nend_header\n", georef.ErrValidation},
		{"unknown format", "ply\nformat binary_middle_endian 1.0\nend_header\n", georef.ErrValidation},
		{"list property", "ply\nformat ascii 1.0\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n3 0 1 2\n", georef.ErrValidation},
		{"unknown type", "ply\nformat ascii 1.0\nelement vertex 1\nproperty half x\nend_header\n1\n", georef.ErrValidation},
		{"truncated header", "ply\nformat ascii 1.0\nelement vertex 1\n", georef.ErrValidation},
		{"truncated ascii body", "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nend_header\n1\n", georef.ErrValidation},
		{"truncated binary body", "ply\nformat binary_little_endian 1.0\nelement vertex 1\nproperty double x\nend_header\n\x00\x00", georef.ErrValidation},
		{"bad number", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nend_header\nabc\n", georef.ErrValidation},
		{"uchar out of range", "ply\nformat ascii 1.0\nelement vertex 1\nproperty uchar red\nend_header\n256\n", georef.ErrValidation},
		{"duplicate property", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float x\nend_header\n1 2\n", georef.ErrValidation},
		{"no vertex element", "ply\nformat ascii 1.0\nelement camera 1\nproperty float f\nend_header\n1\n", georef.ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPLY(strings.NewReader(tt.src))
			testutil.AssertErrorIs(t, err, tt.want)
		})
	}
}

func TestPLYFile_MemoryFileSystem(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	in := newGaussianCloud(3)

	require.NoError(t, WritePLYFile(fs, "/out/cloud.ply", in, FormatBinaryLittle))
	out, err := ReadPLYFile(fs, "/out/cloud.ply")
	require.NoError(t, err)

	for fi := range in.Columns {
		for i, v := range in.Columns[fi] {
			assert.Equal(t, float64(float32(v)), out.Columns[fi][i], "%s[%d]", in.Fields[fi].Name, i)
		}
	}

	_, err = ReadPLYFile(fs, "/missing.ply")
	assert.Error(t, err)

	bad := newGaussianCloud(1)
	bad.Columns[0] = nil
	assert.Error(t, WritePLYFile(fs, "/out/bad.ply", bad, FormatASCII))
	assert.False(t, fs.Exists("/out/bad.ply"), "failed encode must not leave a file")
}

func TestPropertyType(t *testing.T) {
	for alias, want := range map[string]PropertyType{"int8": TypeChar, "uint16": TypeUshort, "float64": TypeDouble, "int": TypeInt} {
		got, err := ParsePropertyType(alias)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 8, TypeDouble.Size())
	assert.Equal(t, 1, TypeUchar.Size())
	assert.True(t, TypeShort.IsInteger())
	assert.False(t, TypeFloat.IsInteger())
}

func TestIdentityApply_OpaqueBytesUnchanged(t *testing.T) {
	header := "ply\nformat binary_little_endian 1.0\nelement vertex 3\n" +
		"property float x\nproperty float y\nproperty float z\n" +
		"property float scale_0\nproperty float f_rest_0\nproperty double f_rest_1\nproperty uchar red\n" +
		"end_header\n"
	opaque32 := []uint32{0x7fa00001, 0xffc00123, 0x7f800001}
	opaque64 := []uint64{0x7ff0000000000001, 0x8000000000000000, 0x3ff0000000000000}

	var body bytes.Buffer
	for i := 0; i < 3; i++ {
		for _, v := range []float32{float32(i) + 0.5, -2, 1e6, 0.125} {
			binary.Write(&body, binary.LittleEndian, v)
		}
		binary.Write(&body, binary.LittleEndian, opaque32[i])
		binary.Write(&body, binary.LittleEndian, opaque64[i])
		body.WriteByte(byte(200 + i))
	}
	in := append([]byte(header), body.Bytes()...)

	c, err := ReadPLY(bytes.NewReader(in))
	require.NoError(t, err)
	out, err := ApplySimilarity(c, georef.IdentityTransform())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WritePLY(&buf, out, ""))
	assert.Equal(t, in, buf.Bytes())
}

func TestFloat32NaNBits(t *testing.T) {
	for _, bits := range []uint32{0x7fa00001, 0x7f800001, 0xffffffff, 0x7fc00000, 0x00000001, 0x80000000, 0x7f800000} {
		got := float64ToFloat32Bits(float32BitsToFloat64(bits))
		assert.Equal(t, bits, got, "bits %#08x", bits)
	}
	assert.True(t, math.IsNaN(float32BitsToFloat64(0x7fa00001)))
	assert.Equal(t, uint32(0x7fc00000), float64ToFloat32Bits(math.NaN())&0x7fc00000)
}
