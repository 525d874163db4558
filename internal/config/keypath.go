package config

import (
	"reflect"
	"sort"
	"strings"
)

// ParseConfigPath splits a dotted key such as "weather.defaultLocation"
// and checks it names a field of Config by its YAML key.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	t := reflect.TypeOf(Config{})
	for i, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if t.Kind() != reflect.Struct {
			return nil, &ConfigError{Message: strings.Join(parts[:i], ".") + " has no sub-keys"}
		}
		field, ok := yamlField(t, p)
		if !ok {
			return nil, &ConfigError{Message: "unknown config key " + strings.Join(parts[:i+1], ".") +
				" (valid: " + strings.Join(Keys(t), ", ") + ")"}
		}
		t = field
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
	}
	return parts, nil
}

// Keys lists the YAML keys of a config struct type, sorted.
func Keys(t reflect.Type) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		if name := yamlName(t.Field(i)); name != "" {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys
}

func yamlField(t reflect.Type, key string) (reflect.Type, bool) {
	for i := 0; i < t.NumField(); i++ {
		if yamlName(t.Field(i)) == key {
			return t.Field(i).Type, true
		}
	}
	return nil, false
}

func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	var current any = root
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value, replacing anything in the way with a section map.
func SetValueAtPath(root map[string]any, path []string, value any) {
	section := root
	for _, key := range path[:len(path)-1] {
		next, ok := section[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			section[key] = next
		}
		section = next
	}
	section[path[len(path)-1]] = value
}

// UnsetValueAtPath removes a value and reports whether it was present.
// Sections left empty are removed too.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 1 {
		_, ok := root[path[0]]
		delete(root, path[0])
		return ok
	}
	child, ok := root[path[0]].(map[string]any)
	if !ok || !UnsetValueAtPath(child, path[1:]) {
		return false
	}
	if len(child) == 0 {
		delete(root, path[0])
	}
	return true
}
