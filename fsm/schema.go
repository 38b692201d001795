package fsm

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// JSON type names used in schemas.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeAny     = "any"
)

// Schema describes the payload a transition accepts, for API docs and
// dynamic forms.
type Schema struct {
	Transition  string        `json:"transition"`
	EntityType  string        `json:"entity_type"`
	Description string        `json:"description,omitempty"`
	FromStates  []string      `json:"from_states,omitempty"`
	Fields      []FieldSchema `json:"fields"`
}

// FieldSchema describes one payload field.
type FieldSchema struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	OmitEmpty   bool        `json:"omit_empty,omitempty"`
	Description string      `json:"description,omitempty"`
	Constraints Constraints `json:"constraints,omitzero"`

	// nullable fields are pointers: only nil counts as empty.
	nullable bool
}

// Constraints are the declared bounds of a field. For strings and arrays the
// bounds apply to the length.
type Constraints struct {
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	ExclusiveMin *float64 `json:"exclusive_min,omitempty"`
	ExclusiveMax *float64 `json:"exclusive_max,omitempty"`
	Enum         []string `json:"enum,omitempty"`
}

// IsZero reports whether no constraint is declared.
func (c Constraints) IsZero() bool {
	return c.Min == nil && c.Max == nil && c.ExclusiveMin == nil && c.ExclusiveMax == nil && len(c.Enum) == 0
}

// Field returns the named field schema.
func (s Schema) Field(name string) (FieldSchema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return FieldSchema{}, false
}

// FieldNames lists the payload keys in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}

	return names
}

// GetTransitionSchema reflects the payload schema of a transition definition.
func GetTransitionSchema(def *Definition) Schema {
	return Schema{
		Transition:  def.Name,
		EntityType:  def.EntityType,
		Description: def.Description,
		FromStates:  slices.Clone(def.FromStates),
		Fields:      schemaFields(def.typ, nil),
	}
}

func schemaFields(typ reflect.Type, out []FieldSchema) []FieldSchema {
	for i := range typ.NumField() {
		fld := typ.Field(i)

		if fld.Anonymous && fld.IsExported() && fld.Type.Kind() == reflect.Struct {
			out = schemaFields(fld.Type, out)

			continue
		}

		if !fld.IsExported() {
			continue
		}

		name := jsonName(fld)
		if name == "-" {
			continue
		}

		field := FieldSchema{
			Name:        name,
			Type:        jsonType(fld.Type),
			Description: fld.Tag.Get("description"),
			nullable:    fld.Type.Kind() == reflect.Pointer,
		}

		parseConstraints(fld.Tag.Get("validate"), &field)

		out = append(out, field)
	}

	return out
}

func parseConstraints(tag string, field *FieldSchema) {
	for rule := range strings.SplitSeq(tag, ",") {
		key, param, _ := strings.Cut(rule, "=")

		switch key {
		case "required":
			field.Required = true
		case "omitempty":
			field.OmitEmpty = true
		case "min", "gte":
			field.Constraints.Min = parseBound(param)
		case "max", "lte":
			field.Constraints.Max = parseBound(param)
		case "gt":
			field.Constraints.ExclusiveMin = parseBound(param)
		case "lt":
			field.Constraints.ExclusiveMax = parseBound(param)
		case "len":
			field.Constraints.Min = parseBound(param)
			field.Constraints.Max = parseBound(param)
		case "oneof":
			field.Constraints.Enum = strings.Fields(param)
		}
	}
}

func parseBound(param string) *float64 {
	f, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return nil
	}

	return &f
}

func jsonType(typ reflect.Type) string {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	if typ == timeType {
		return TypeString
	}

	switch typ.Kind() { //nolint:exhaustive
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map, reflect.Struct:
		return TypeObject
	default:
		return TypeAny
	}
}

// Check validates a raw payload against the declared types and constraints,
// without constructing the transition. Empty scalars ("", 0, false) count as
// missing for required fields and skip the constraints of omitempty fields,
// matching what Build accepts.
func (s Schema) Check(payload map[string]any) error {
	serr := &SchemaError{Transition: s.Transition}

	for _, field := range s.Fields {
		value, ok := payload[field.Name]
		if !ok || value == nil {
			if field.Required {
				serr.add(field.Name, "field required")
			}

			continue
		}

		if reason := field.check(value); reason != "" {
			serr.add(field.Name, reason)
		}
	}

	return serr.orNil()
}

func (f FieldSchema) check(value any) string {
	var (
		measure float64
		label   = "value"
	)

	switch f.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %T", value)
		}

		if reason, done := f.checkEmpty(s == ""); done {
			return reason
		}

		if len(f.Constraints.Enum) > 0 && !slices.Contains(f.Constraints.Enum, s) {
			return "must be one of: " + strings.Join(f.Constraints.Enum, ", ")
		}

		measure, label = float64(len(s)), "length"
	case TypeInteger, TypeNumber:
		n, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("expected %s, got %T", f.Type, value)
		}

		if f.Type == TypeInteger && n != math.Trunc(n) {
			return "expected integer, got fractional number"
		}

		if reason, done := f.checkEmpty(n == 0); done {
			return reason
		}

		if len(f.Constraints.Enum) > 0 && !slices.Contains(f.Constraints.Enum, strconv.FormatFloat(n, 'f', -1, 64)) {
			return "must be one of: " + strings.Join(f.Constraints.Enum, ", ")
		}

		measure = n
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return fmt.Sprintf("expected boolean, got %T", value)
		}

		reason, _ := f.checkEmpty(!b)

		return reason
	case TypeArray:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Sprintf("expected array, got %T", value)
		}

		measure, label = float64(rv.Len()), "length"
	case TypeObject:
		if reflect.ValueOf(value).Kind() != reflect.Map {
			return fmt.Sprintf("expected object, got %T", value)
		}

		return ""
	default:
		return ""
	}

	return f.Constraints.checkBounds(measure, label)
}

// checkEmpty applies required and omitempty to an empty scalar. done reports
// that no further constraint applies.
func (f FieldSchema) checkEmpty(empty bool) (reason string, done bool) {
	if !empty || f.nullable {
		return "", false
	}

	switch {
	case f.Required:
		return "field required", true
	case f.OmitEmpty:
		return "", true
	default:
		return "", false
	}
}

func (c Constraints) checkBounds(v float64, label string) string {
	switch {
	case c.Min != nil && v < *c.Min:
		return fmt.Sprintf("%s must be at least %v", label, *c.Min)
	case c.Max != nil && v > *c.Max:
		return fmt.Sprintf("%s must be at most %v", label, *c.Max)
	case c.ExclusiveMin != nil && v <= *c.ExclusiveMin:
		return fmt.Sprintf("%s must be greater than %v", label, *c.ExclusiveMin)
	case c.ExclusiveMax != nil && v >= *c.ExclusiveMax:
		return fmt.Sprintf("%s must be less than %v", label, *c.ExclusiveMax)
	default:
		return ""
	}
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}
