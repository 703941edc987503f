package table

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"rewriteplan/pkg/planerr"
)

type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

type NullOrder string

const (
	NullsFirst NullOrder = "nulls-first"
	NullsLast  NullOrder = "nulls-last"
)

// Transform is applied to a source column before comparing values, e.g.
// "identity", "bucket[16]", "truncate[4]", "day".
type Transform string

const (
	IdentityTransform Transform = "identity"
	YearTransform     Transform = "year"
	MonthTransform    Transform = "month"
	DayTransform      Transform = "day"
	HourTransform     Transform = "hour"
	VoidTransform     Transform = "void"
)

var paramTransform = regexp.MustCompile(`^(bucket|truncate)\[(\d+)\]$`)

// appliesTo reports whether the transform can be applied to a column of type t.
func (tr Transform) appliesTo(t Type) (bool, error) {
	name := string(tr)
	if name == "" {
		name = string(IdentityTransform)
	}

	if m := paramTransform.FindStringSubmatch(name); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil || n <= 0 {
			return false, fmt.Errorf("invalid transform %q", tr)
		}
		switch m[1] {
		case "bucket":
			switch t {
			case IntType, LongType, DecimalType, DateType, TimeType, TimestampType,
				TimestampTzType, StringType, UUIDType, BinaryType:
				return true, nil
			}
		case "truncate":
			switch t {
			case IntType, LongType, DecimalType, StringType, BinaryType:
				return true, nil
			}
		}
		return false, nil
	}

	switch Transform(name) {
	case IdentityTransform, VoidTransform:
		return t.IsPrimitive(), nil
	case YearTransform, MonthTransform, DayTransform:
		return t == DateType || t == TimestampType || t == TimestampTzType, nil
	case HourTransform:
		return t == TimestampType || t == TimestampTzType, nil
	}
	return false, fmt.Errorf("unknown transform %q", tr)
}

// SortField is one key of a sort order.
type SortField struct {
	SourceID  int           `yaml:"source-id" json:"source-id"`
	Transform Transform     `yaml:"transform" json:"transform"`
	Direction SortDirection `yaml:"direction" json:"direction"`
	NullOrder NullOrder     `yaml:"null-order" json:"null-order"`
}

func (f SortField) String() string {
	tr := f.Transform
	if tr == "" {
		tr = IdentityTransform
	}
	return fmt.Sprintf("%s(%d) %s %s", tr, f.SourceID, f.Direction, f.NullOrder)
}

// SortOrder is an ordered list of sort keys. An order without fields is the
// unsorted order.
type SortOrder struct {
	OrderID int         `yaml:"order-id" json:"order-id"`
	Fields  []SortField `yaml:"fields" json:"fields"`
}

// UnsortedOrder is the sort order of tables that declare none.
var UnsortedOrder = SortOrder{}

func (o SortOrder) IsUnsorted() bool {
	return len(o.Fields) == 0
}

func (o SortOrder) String() string {
	if o.IsUnsorted() {
		return "[]"
	}
	parts := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// NewSortOrder builds a sort order from column names using identity
// transforms. Each key is "name", "name desc", or "name desc nulls-last".
func NewSortOrder(schema *Schema, orderID int, keys ...string) (SortOrder, error) {
	order := SortOrder{OrderID: orderID}
	for _, key := range keys {
		parts := strings.Fields(key)
		if len(parts) == 0 || len(parts) > 3 {
			return SortOrder{}, fmt.Errorf("invalid sort key %q", key)
		}
		field, ok := schema.FindFieldByName(parts[0])
		if !ok {
			return SortOrder{}, fmt.Errorf("cannot find column %q", parts[0])
		}

		sf := SortField{SourceID: field.ID, Transform: IdentityTransform, Direction: Asc, NullOrder: NullsFirst}
		if len(parts) > 1 {
			switch SortDirection(strings.ToLower(parts[1])) {
			case Asc:
			case Desc:
				sf.Direction = Desc
				sf.NullOrder = NullsLast
			default:
				return SortOrder{}, fmt.Errorf("invalid direction in sort key %q", key)
			}
		}
		if len(parts) > 2 {
			switch NullOrder(strings.ToLower(parts[2])) {
			case NullsFirst:
				sf.NullOrder = NullsFirst
			case NullsLast:
				sf.NullOrder = NullsLast
			default:
				return SortOrder{}, fmt.Errorf("invalid null order in sort key %q", key)
			}
		}
		order.Fields = append(order.Fields, sf)
	}
	return order, nil
}

// CheckCompatibility verifies that every key of order resolves against schema
// to a column its transform can be applied to. All problems are reported.
func CheckCompatibility(order SortOrder, schema *Schema) error {
	var errs []error
	for _, f := range order.Fields {
		field, ok := schema.FindField(f.SourceID)
		if !ok {
			errs = append(errs, fmt.Errorf("cannot find source column for sort field %s", f))
			continue
		}
		ok, err := f.Transform.appliesTo(field.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("sort field %s: %w", f, err))
			continue
		}
		if !ok {
			errs = append(errs, fmt.Errorf("invalid source type %s for transform %s on column %q", field.Type, f.Transform, field.Name))
		}
		switch f.Direction {
		case Asc, Desc:
		default:
			errs = append(errs, fmt.Errorf("sort field %s: invalid direction %q", f, f.Direction))
		}
		switch f.NullOrder {
		case NullsFirst, NullsLast:
		default:
			errs = append(errs, fmt.Errorf("sort field %s: invalid null order %q", f, f.NullOrder))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", planerr.ErrInvalidSortOrder, errors.Join(errs...))
}
