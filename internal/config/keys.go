package config

import (
	"reflect"
	"sort"
	"strings"
)

// normalizeConfigMap maps keys written without underscores and keys
// from the retired flat layout to the canonical snake_case keys defined
// by mapstructure tags. It mutates and returns the provided map.
func normalizeConfigMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	applyRenamedKeys(data)
	return normalizeMapForStruct(data, reflect.TypeOf(Config{}))
}

// applyRenamedKeys moves values from retired key locations to their
// current ones. Current keys win when both are present.
func applyRenamedKeys(data map[string]interface{}) {
	if db, ok := data["database"].(map[string]interface{}); ok {
		// database.path predates candidate directory lists
		if val, ok := db["path"]; ok {
			if _, exists := db["preferred_path"]; !exists {
				db["preferred_path"] = val
			}
			delete(db, "path")
		}
	}

	if health, ok := data["health"].(map[string]interface{}); ok {
		if val, ok := health["check_interval"]; ok {
			if _, exists := health["interval"]; !exists {
				health["interval"] = val
			}
			delete(health, "check_interval")
		}
	}
}

func normalizeMapForStruct(data map[string]interface{}, t reflect.Type) map[string]interface{} {
	if data == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return data
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := canonicalTagName(field)
		if name == "" || name == "-" {
			continue
		}

		legacy := strings.ReplaceAll(name, "_", "")
		if legacy != name {
			if val, ok := data[legacy]; ok {
				if _, exists := data[name]; !exists {
					data[name] = val
				}
				delete(data, legacy)
			}
		}

		if val, ok := data[name]; ok {
			data[name] = normalizeValueForType(val, field.Type)
		}
	}

	return data
}

func normalizeValueForType(value interface{}, t reflect.Type) interface{} {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Kind() == reflect.Struct {
		if m, ok := value.(map[string]interface{}); ok {
			return normalizeMapForStruct(m, t)
		}
	}

	return value
}

func canonicalTagName(field reflect.StructField) string {
	if tag := field.Tag.Get("mapstructure"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	return strings.ToLower(field.Name)
}

// knownKeys returns the set of canonical configuration keys derived
// from the Config struct tags.
func knownKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	collectKeys(reflect.TypeOf(Config{}), "", keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, out map[string]struct{}) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := canonicalTagName(field)
		if name == "" || name == "-" {
			continue
		}

		full := name
		if prefix != "" {
			full = prefix + "." + name
		}

		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			collectKeys(ft, full, out)
			continue
		}
		out[full] = struct{}{}
	}
}

func keyList(known map[string]struct{}) []string {
	keys := make([]string, 0, len(known))
	for k := range known {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// underscoreInsensitive returns the known key whose underscore-free
// form matches the underscore-free form of key, or "" when none does.
func underscoreInsensitive(key string, known map[string]struct{}) string {
	flat := strings.ReplaceAll(key, "_", "")
	for k := range known {
		if strings.ReplaceAll(k, "_", "") == flat {
			return k
		}
	}
	return ""
}
