package config

import (
	"reflect"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// marshalNested is the inverse of the TOML half of LoadConfig: each field is
// written at its dotted toml path.
func marshalNested(opts any) ([]byte, error) {
	v := reflect.ValueOf(opts)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	t := v.Type()

	root := make(map[string]any)
	for i := 0; i < v.NumField(); i++ {
		tomlPath := t.Field(i).Tag.Get("toml")
		if tomlPath == "" {
			continue
		}
		setNestedValue(root, tomlPath, v.Field(i).Interface())
	}
	return toml.Marshal(root)
}

func setNestedValue(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
