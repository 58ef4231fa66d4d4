package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/cast"
	"github.com/valter-silva-au/knc/pkg/models"
)

// collectFields builds a field patch from an optional JSON file and any
// number of key=value assignments. Assignments override file values.
func collectFields(variant models.ConfigVariant, file string, sets []string) (models.Fields, error) {
	fields := models.Fields{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading fields file: %w", err)
		}
		if err := decodeJSON(data, &fields); err != nil {
			return nil, fmt.Errorf("parsing fields file %s: %w", file, err)
		}
	}
	set, err := parseSetFlags(sets)
	if err != nil {
		return nil, err
	}
	for k, v := range set {
		fields[k] = v
	}
	return coerceFields(variant, fields)
}

// parseSetFlags turns key=value pairs into fields. A value that is valid
// JSON is used as decoded, numbers as json.Number; anything else is kept as
// a string.
func parseSetFlags(sets []string) (models.Fields, error) {
	fields := make(models.Fields, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", s)
		}
		var v any
		if err := decodeJSON([]byte(raw), &v); err != nil {
			v = raw
		}
		fields[key] = v
	}
	return fields, nil
}

// coerceFields converts string values to the JSON type of the target field,
// so "--set enabled=True" or "--set tags=a,b" reach the record correctly.
// Unknown keys pass through untouched for validation to report.
func coerceFields(variant models.ConfigVariant, fields models.Fields) (models.Fields, error) {
	zero, err := models.ZeroConfig(variant)
	if err != nil {
		return nil, err
	}
	kinds := fieldKinds(reflect.TypeOf(zero).Elem())

	out := make(models.Fields, len(fields))
	for k, v := range fields {
		kind, known := kinds[k]
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		case json.Number:
			if !known || kind == reflect.Map || kind == reflect.Slice || kind == reflect.Struct {
				out[k] = tv
				continue
			}
			s = tv.String()
		default:
			out[k] = v
			continue
		}
		if !known {
			out[k] = s
			continue
		}
		switch kind {
		case reflect.Bool:
			b, err := cast.ToBoolE(s)
			if err != nil {
				return nil, fmt.Errorf("field %s: %q is not a boolean", k, s)
			}
			out[k] = b
		case reflect.Int, reflect.Int64:
			n, err := cast.ToInt64E(s)
			if err != nil {
				return nil, fmt.Errorf("field %s: %q is not an integer", k, s)
			}
			out[k] = n
		case reflect.Float64:
			f, err := cast.ToFloat64E(s)
			if err != nil {
				return nil, fmt.Errorf("field %s: %q is not a number", k, s)
			}
			out[k] = f
		case reflect.Slice:
			out[k] = cast.ToStringSlice(splitList(s))
		default:
			out[k] = s
		}
	}
	return out, nil
}

// fieldKinds maps JSON field names of a config struct to their kinds,
// descending into embedded structs and through pointers.
func fieldKinds(t reflect.Type) map[string]reflect.Kind {
	kinds := make(map[string]reflect.Kind)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			for k, v := range fieldKinds(f.Type) {
				kinds[k] = v
			}
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		kinds[name] = ft.Kind()
	}
	return kinds
}

// decodeJSON decodes data keeping numbers as json.Number and rejects
// trailing content.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected content after JSON value")
	}
	return nil
}

func splitList(s string) []any {
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
