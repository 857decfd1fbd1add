// Package splat holds the Gaussian-splat point cloud model, the PLY codec and
// the operations that carry a similarity transform through a cloud.
//
// A Cloud is columnar: one []float64 per vertex property. Every property is
// classified once, when the schema is built, into a FieldRole that decides
// how transforms treat it.
package splat

import (
	"fmt"
	"strings"

	"github.com/banshee-data/splatgeo/internal/georef"
)

// PropertyType is a PLY scalar type name.
type PropertyType string

const (
	TypeChar   PropertyType = "char"
	TypeUchar  PropertyType = "uchar"
	TypeShort  PropertyType = "short"
	TypeUshort PropertyType = "ushort"
	TypeInt    PropertyType = "int"
	TypeUint   PropertyType = "uint"
	TypeFloat  PropertyType = "float"
	TypeDouble PropertyType = "double"
)

var typeAliases = map[string]PropertyType{
	"char": TypeChar, "int8": TypeChar,
	"uchar": TypeUchar, "uint8": TypeUchar,
	"short": TypeShort, "int16": TypeShort,
	"ushort": TypeUshort, "uint16": TypeUshort,
	"int": TypeInt, "int32": TypeInt,
	"uint": TypeUint, "uint32": TypeUint,
	"float": TypeFloat, "float32": TypeFloat,
	"double": TypeDouble, "float64": TypeDouble,
}

// ParsePropertyType resolves a PLY type name, including the sized aliases
// (int8 ... float64), to its canonical form.
func ParsePropertyType(name string) (PropertyType, error) {
	t, ok := typeAliases[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown PLY property type %q", georef.ErrValidation, name)
	}
	return t, nil
}

// Size returns the encoded width in bytes.
func (t PropertyType) Size() int {
	switch t {
	case TypeChar, TypeUchar:
		return 1
	case TypeShort, TypeUshort:
		return 2
	case TypeInt, TypeUint, TypeFloat:
		return 4
	case TypeDouble:
		return 8
	default:
		return 0
	}
}

// IsInteger reports whether values of this type are stored as integers.
func (t PropertyType) IsInteger() bool {
	return t != TypeFloat && t != TypeDouble
}

// FieldRole says how a transform treats a vertex property.
type FieldRole int

const (
	// RoleOpaque fields are copied unchanged.
	RoleOpaque FieldRole = iota
	// RolePosition marks x, y and z.
	RolePosition
	// RoleScaleLike fields are multiplied by the transform scale.
	RoleScaleLike
)

func (r FieldRole) String() string {
	switch r {
	case RolePosition:
		return "position"
	case RoleScaleLike:
		return "scale-like"
	default:
		return "opaque"
	}
}

// ClassifyField assigns the role for a property name: exactly "x", "y" or
// "z" is a position; a name whose lower-cased form starts with "scale" or
// "radius" is scale-like; anything else is opaque.
func ClassifyField(name string) FieldRole {
	switch name {
	case "x", "y", "z":
		return RolePosition
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "scale") || strings.HasPrefix(lower, "radius") {
		return RoleScaleLike
	}
	return RoleOpaque
}

// Field describes one vertex property.
type Field struct {
	Name string
	Type PropertyType
	Role FieldRole
}

// NewField returns a classified field.
func NewField(name string, typ PropertyType) Field {
	return Field{Name: name, Type: typ, Role: ClassifyField(name)}
}

// Element is a non-vertex PLY element (faces without list properties, camera
// blocks and the like). It is carried through transforms untouched.
type Element struct {
	Name    string
	Fields  []Field
	Columns [][]float64
}

// Len returns the record count.
func (e Element) Len() int {
	if len(e.Columns) == 0 {
		return 0
	}
	return len(e.Columns[0])
}

func (e Element) clone() Element {
	out := Element{Name: e.Name, Fields: append([]Field(nil), e.Fields...)}
	out.Columns = cloneColumns(e.Columns)
	return out
}

// Cloud is a splat point cloud: the vertex element plus whatever else the
// source file carried.
type Cloud struct {
	Fields  []Field
	Columns [][]float64

	// Format is the encoding the cloud was read with. WritePLY falls back to
	// it when no format is requested.
	Format Format

	Comments []string
	ObjInfo  []string

	// Extra holds the non-vertex elements in file order. VertexIndex is the
	// position of the vertex element among all elements.
	Extra       []Element
	VertexIndex int
}

// NewCloud allocates a cloud with n zeroed records for the given schema.
// Roles are (re)assigned from the field names.
func NewCloud(fields []Field, n int) *Cloud {
	c := &Cloud{
		Fields:  make([]Field, len(fields)),
		Columns: make([][]float64, len(fields)),
	}
	for i, f := range fields {
		c.Fields[i] = NewField(f.Name, f.Type)
		c.Columns[i] = make([]float64, n)
	}
	return c
}

// Len returns the number of vertex records.
func (c *Cloud) Len() int {
	if len(c.Columns) == 0 {
		return 0
	}
	return len(c.Columns[0])
}

// FieldIndex returns the column index of name, or -1.
func (c *Cloud) FieldIndex(name string) int {
	for i, f := range c.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named field.
func (c *Cloud) Column(name string) ([]float64, bool) {
	i := c.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return c.Columns[i], true
}

// FieldsWithRole returns the indices of every field carrying role.
func (c *Cloud) FieldsWithRole(role FieldRole) []int {
	var out []int
	for i, f := range c.Fields {
		if f.Role == role {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks the schema against the columns: one column per field,
// equal lengths, unique names, known types.
func (c *Cloud) Validate() error {
	if err := validateSchema("vertex", c.Fields, c.Columns); err != nil {
		return err
	}
	for _, e := range c.Extra {
		if e.Name == "vertex" {
			return fmt.Errorf("%w: duplicate vertex element", georef.ErrValidation)
		}
		if err := validateSchema(e.Name, e.Fields, e.Columns); err != nil {
			return err
		}
	}
	if c.VertexIndex < 0 || c.VertexIndex > len(c.Extra) {
		return fmt.Errorf("%w: vertex element index %d out of range", georef.ErrValidation, c.VertexIndex)
	}
	return nil
}

func validateSchema(element string, fields []Field, columns [][]float64) error {
	if len(fields) != len(columns) {
		return fmt.Errorf("%w: %s has %d fields but %d columns", georef.ErrValidation, element, len(fields), len(columns))
	}
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.Type.Size() == 0 {
			return fmt.Errorf("%w: %s.%s has unknown type %q", georef.ErrValidation, element, f.Name, f.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s has duplicate field %q", georef.ErrValidation, element, f.Name)
		}
		seen[f.Name] = true
		if len(columns[i]) != len(columns[0]) {
			return fmt.Errorf("%w: %s.%s has %d values, want %d", georef.ErrValidation, element, f.Name, len(columns[i]), len(columns[0]))
		}
	}
	return nil
}

// positionIndices returns the column indices of x, y and z.
func (c *Cloud) positionIndices() ([3]int, error) {
	var idx [3]int
	for i, name := range []string{"x", "y", "z"} {
		idx[i] = c.FieldIndex(name)
		if idx[i] < 0 {
			return idx, fmt.Errorf("%w: point cloud has no %q field", georef.ErrMissingField, name)
		}
	}
	return idx, nil
}

// Clone returns a deep copy.
func (c *Cloud) Clone() *Cloud {
	out := &Cloud{
		Fields:      append([]Field(nil), c.Fields...),
		Columns:     cloneColumns(c.Columns),
		Comments:    append([]string(nil), c.Comments...),
		ObjInfo:     append([]string(nil), c.ObjInfo...),
		Format:      c.Format,
		VertexIndex: c.VertexIndex,
	}
	if c.Extra != nil {
		out.Extra = make([]Element, len(c.Extra))
		for i, e := range c.Extra {
			out.Extra[i] = e.clone()
		}
	}
	return out
}

func cloneColumns(cols [][]float64) [][]float64 {
	if cols == nil {
		return nil
	}
	out := make([][]float64, len(cols))
	for i, col := range cols {
		out[i] = append([]float64(nil), col...)
	}
	return out
}
