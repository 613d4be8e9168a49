package binder

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// bindToStruct sets every field carrying tagName from values. Fields without
// the tag, or whose parameter is absent, keep their current value.
func bindToStruct(v any, tagName string, values map[string][]string, bindErr error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: target must be a non-nil pointer", bindErr)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a pointer to struct", bindErr)
	}

	rt := rv.Type()
	for i := range rv.NumField() {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() || !hasTag(sf, tagName) {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get(tagName), ",")
		if name == "-" {
			continue
		}
		vals, ok := values[name]
		if !ok || len(vals) == 0 {
			continue
		}
		if err := setFieldValue(field, sf.Type, vals[0]); err != nil {
			return fmt.Errorf("%w: field %s: %v", bindErr, name, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, t reflect.Type, value string) error {
	if t.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(t.Elem()))
		}
		return setFieldValue(field.Elem(), t.Elem(), value)
	}

	switch t.Kind() {
	case reflect.String:
		field.SetString(strings.TrimSpace(value))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, t.Bits())
		if err != nil {
			return fmt.Errorf("invalid int value %q", value)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool value %q", value)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported type %s", t.Kind())
	}
	return nil
}
