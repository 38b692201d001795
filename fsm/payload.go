package fsm

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const payloadField = "payload"

var payloadValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := jsonName(fld)
		if name == "-" {
			return ""
		}

		return name
	})

	return v
})

// Build constructs a transition instance from an untyped payload. Every field
// is decoded and checked against its `validate` tag; all failures are
// reported together in one *SchemaError.
func (d *Definition) Build(data map[string]any) (Transition, error) {
	t := d.newFn()
	serr := &SchemaError{Transition: d.Name}

	decodeFields(reflect.ValueOf(t).Elem(), data, "", serr)

	if err := payloadValidator().Struct(t); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			serr.add(payloadField, err.Error())
		}

		for _, fe := range fieldErrs {
			serr.add(d.fieldPath(fe), constraintMessage(fe))
		}
	}

	if len(serr.Fields) == 0 {
		if pv, ok := t.(PayloadValidator); ok {
			mergePayloadError(serr, pv.ValidatePayload())
		}
	}

	if err := serr.orNil(); err != nil {
		return nil, err
	}

	return t, nil
}

// BuildDefault builds the transition with an empty payload. It fails for
// transitions with required fields.
func (d *Definition) BuildDefault() (Transition, bool) {
	t, err := d.Build(nil)

	return t, err == nil
}

func mergePayloadError(serr *SchemaError, err error) {
	if err == nil {
		return
	}

	var other *SchemaError
	if errors.As(err, &other) {
		for field, reason := range other.Fields {
			serr.add(field, reason)
		}

		return
	}

	serr.add(payloadField, err.Error())
}

// decodeFields decodes each present key independently so one bad field does
// not hide the others. Embedded structs share the parent's key space.
func decodeFields(v reflect.Value, data map[string]any, prefix string, serr *SchemaError) {
	typ := v.Type()

	for i := range typ.NumField() {
		fld := typ.Field(i)

		if fld.Anonymous && fld.IsExported() && fld.Type.Kind() == reflect.Struct {
			decodeFields(v.Field(i), data, prefix, serr)

			continue
		}

		if !fld.IsExported() {
			continue
		}

		name := jsonName(fld)
		if name == "-" {
			continue
		}

		raw, ok := data[name]
		if !ok {
			continue
		}

		encoded, err := json.Marshal(raw)
		if err != nil {
			serr.add(prefix+name, err.Error())

			continue
		}

		if err := json.Unmarshal(encoded, v.Field(i).Addr().Interface()); err != nil {
			serr.add(prefix+name, decodeMessage(err))
		}
	}
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("expected %s, got %s", jsonType(typeErr.Type), typeErr.Value)
	}

	return err.Error()
}

func constraintMessage(fe validator.FieldError) string {
	sized := false

	switch fe.Kind() { //nolint:exhaustive
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		sized = true
	}

	switch fe.Tag() {
	case "required":
		return "field required"
	case "min", "gte":
		if sized {
			return "length must be at least " + fe.Param()
		}

		return "must be greater than or equal to " + fe.Param()
	case "max", "lte":
		if sized {
			return "length must be at most " + fe.Param()
		}

		return "must be less than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "len":
		return "length must be " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}

// fieldPath maps a validator namespace (Go field names) to the payload key.
func (d *Definition) fieldPath(fe validator.FieldError) string {
	_, goPath, _ := strings.Cut(fe.StructNamespace(), ".")
	if path, ok := d.fieldPaths[goPath]; ok {
		return path
	}

	return fe.Field()
}

var timeType = reflect.TypeFor[time.Time]()

func collectFieldPaths(typ reflect.Type, goPrefix, jsonPrefix string, out map[string]string) map[string]string {
	if out == nil {
		out = make(map[string]string)
	}

	for i := range typ.NumField() {
		fld := typ.Field(i)

		if fld.Anonymous && fld.IsExported() && fld.Type.Kind() == reflect.Struct {
			collectFieldPaths(fld.Type, goPrefix+fld.Name+".", jsonPrefix, out)

			continue
		}

		if !fld.IsExported() {
			continue
		}

		name := jsonName(fld)
		if name == "-" {
			continue
		}

		out[goPrefix+fld.Name] = jsonPrefix + name

		if fld.Type.Kind() == reflect.Struct && fld.Type != timeType {
			collectFieldPaths(fld.Type, goPrefix+fld.Name+".", jsonPrefix+name+".", out)
		}
	}

	return out
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" {
		return fld.Name
	}

	return name
}
