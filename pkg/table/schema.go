package table

import (
	"fmt"
	"strings"
)

// Type is a column type name as it appears in table metadata.
type Type string

const (
	BooleanType     Type = "boolean"
	IntType         Type = "int"
	LongType        Type = "long"
	FloatType       Type = "float"
	DoubleType      Type = "double"
	DateType        Type = "date"
	TimeType        Type = "time"
	TimestampType   Type = "timestamp"
	TimestampTzType Type = "timestamptz"
	StringType      Type = "string"
	UUIDType        Type = "uuid"
	BinaryType      Type = "binary"
	DecimalType     Type = "decimal"

	StructType Type = "struct"
	ListType   Type = "list"
	MapType    Type = "map"
)

var primitives = map[Type]struct{}{
	BooleanType: {}, IntType: {}, LongType: {}, FloatType: {}, DoubleType: {},
	DateType: {}, TimeType: {}, TimestampType: {}, TimestampTzType: {},
	StringType: {}, UUIDType: {}, BinaryType: {}, DecimalType: {},
}

// IsPrimitive reports whether values of t can be compared and sorted.
func (t Type) IsPrimitive() bool {
	_, ok := primitives[t]
	return ok
}

// Field is a top-level column.
type Field struct {
	ID       int    `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Type     Type   `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required"`
}

// Schema is the current column layout of a table.
type Schema struct {
	SchemaID int     `yaml:"schema-id" json:"schema-id"`
	Fields   []Field `yaml:"fields" json:"fields"`
}

func NewSchema(id int, fields ...Field) *Schema {
	return &Schema{SchemaID: id, Fields: fields}
}

func (s *Schema) FindField(id int) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// FindFieldByName looks a column up case-insensitively.
func (s *Schema) FindFieldByName(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks that field ids and names are unique and types are known.
func (s *Schema) Validate() error {
	if s == nil {
		return fmt.Errorf("schema is nil")
	}
	ids := make(map[int]struct{}, len(s.Fields))
	names := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if _, dup := ids[f.ID]; dup {
			return fmt.Errorf("duplicate field id %d", f.ID)
		}
		ids[f.ID] = struct{}{}

		lower := strings.ToLower(f.Name)
		if _, dup := names[lower]; dup {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		names[lower] = struct{}{}

		switch {
		case f.Type.IsPrimitive(), f.Type == StructType, f.Type == ListType, f.Type == MapType:
		default:
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}
