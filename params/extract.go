package params

import (
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Extract reads key from payload. Maps with string keys are indexed
// directly; structs are matched by json or mapstructure tag, then by field
// name (case-insensitive). A missing key yields nil rather than an error.
func Extract(payload any, key string) any {
	if payload == nil {
		return nil
	}
	if m, ok := payload.(map[string]any); ok {
		return m[key]
	}

	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil
		}
		mv := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil
		}
		return mv.Interface()
	case reflect.Struct:
		return structField(v, key)
	default:
		return nil
	}
}

func structField(v reflect.Value, key string) any {
	t := v.Type()
	fallback := -1
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tagName(f, "json") == key || tagName(f, "mapstructure") == key {
			return v.Field(i).Interface()
		}
		if fallback < 0 && strings.EqualFold(f.Name, key) {
			fallback = i
		}
	}
	if fallback >= 0 {
		return v.Field(fallback).Interface()
	}
	return nil
}

func tagName(f reflect.StructField, tag string) string {
	name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
	return name
}

// Convert adapts value to typ. nil becomes the zero value, assignable values
// pass through, and anything else is decoded with mapstructure (numeric
// widening, map to struct, struct to map).
func Convert(value any, typ reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(typ), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(typ) {
		return v, nil
	}

	out := reflect.New(typ)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out.Interface(),
		WeaklyTypedInput: false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
		),
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Decode(value); err != nil {
		return reflect.Value{}, err
	}
	return out.Elem(), nil
}
