package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupProperty walks a dot path over the record values. Map keys match
// exactly first, then case-insensitively; numeric segments index lists. The
// path "id" falls back to the record id.
func LookupProperty(record Record, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = record.Values
	for i, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return nil, false
		}
		next, ok := lookupSegment(current, segment)
		if !ok {
			if i == 0 && len(segments) == 1 && strings.EqualFold(segment, "id") && strings.TrimSpace(record.ID) != "" {
				return record.ID, true
			}
			return nil, false
		}
		current = next
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

func lookupSegment(current any, segment string) (any, bool) {
	switch typed := current.(type) {
	case map[string]any:
		if value, ok := typed[segment]; ok {
			return value, value != nil
		}
		for key, value := range typed {
			if strings.EqualFold(key, segment) {
				return value, value != nil
			}
		}
		return nil, false
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(typed) {
			return nil, false
		}
		return typed[index], typed[index] != nil
	case nil:
		return nil, false
	}

	value := reflect.ValueOf(current)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil, false
		}
		value = value.Elem()
	}
	switch value.Kind() {
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		for _, key := range value.MapKeys() {
			if strings.EqualFold(key.String(), segment) {
				found := value.MapIndex(key)
				if !found.IsValid() || !found.CanInterface() {
					return nil, false
				}
				return found.Interface(), found.Interface() != nil
			}
		}
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= value.Len() {
			return nil, false
		}
		return value.Index(index).Interface(), true
	case reflect.Struct:
		field := value.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, segment)
		})
		if field.IsValid() && field.CanInterface() {
			return field.Interface(), true
		}
	}
	return nil, false
}

// Stringify renders a resolved value the way it appears in URLs, headers and
// literal text.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	case *time.Time:
		if typed == nil {
			return ""
		}
		return typed.UTC().Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case uint:
		return strconv.FormatUint(uint64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case fmt.Stringer:
		return typed.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err == nil {
			return string(encoded)
		}
	}
	return fmt.Sprint(value)
}
