package handler

import (
	"reflect"
	"strings"
)

// sanitize trims surrounding whitespace from every settable string field of
// the struct v points to.
func sanitize(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return
	}
	val = val.Elem()
	for i := range val.NumField() {
		field := val.Field(i)
		if field.CanSet() && field.Kind() == reflect.String {
			field.SetString(strings.TrimSpace(field.String()))
		}
	}
}
