package transforms

import (
	"reflect"
	"strings"

	"github.com/rs/zerolog/log"
)

// TransformDefinition sets Data fields on every struct of Type whose Match fields equal the given values
type TransformDefinition struct {
	Type  string                 `yaml:"type"`
	Match map[string]string      `yaml:"match"`
	Data  map[string]interface{} `yaml:"data"`
}

func (t *TransformDefinition) Transform(inputTypeOf reflect.Type, inputValue reflect.Value) {
	if !inputValue.IsValid() || inputValue.Kind() != reflect.Struct {
		return
	}

	isMatch := t.Type == "" || t.Type == inputTypeOf.String()

	for key, value := range t.Match {
		field := inputValue.FieldByName(key)
		if !field.IsValid() || field.Kind() != reflect.String || value != field.String() {
			isMatch = false
		}
	}

	// If we match then go over and update the values
	if isMatch {
		for key, value := range t.Data {
			field := inputValue.FieldByName(key)
			if !field.IsValid() || !field.CanSet() {
				continue
			}

			newValue := reflect.ValueOf(value)
			if !newValue.IsValid() || !newValue.Type().ConvertibleTo(field.Type()) {
				log.Warn().Str("type", inputTypeOf.String()).Str("field", key).Msg("Transform value does not fit field")
				continue
			}
			field.Set(newValue.Convert(field.Type()))
		}
	}
}

// Transform applies the rules to input and everything reachable from it, up to depth levels down
func (c *Client) Transform(input interface{}, depth int) {
	if c == nil || len(c.definitions) == 0 {
		return
	}
	c.walk(reflect.ValueOf(input), depth)
}

func (c *Client) walk(value reflect.Value, depth int) {
	if depth < 0 || !value.IsValid() {
		return
	}

	switch value.Kind() {
	case reflect.Pointer:
		if value.IsNil() {
			return
		}
		c.walk(value.Elem(), depth)
	case reflect.Slice:
		for i := 0; i < value.Len(); i++ {
			c.walk(value.Index(i), depth)
		}
	case reflect.Struct:
		if !value.CanAddr() {
			return
		}

		typeOf := value.Type()
		for _, transformDef := range c.definitions {
			transformDef.Transform(typeOf, value)
		}

		for i := 0; i < value.NumField(); i++ {
			if !typeOf.Field(i).IsExported() {
				continue
			}
			field := value.Field(i)
			switch field.Kind() {
			case reflect.Pointer, reflect.Slice, reflect.Struct:
				if isTime(field.Type()) {
					continue
				}
				c.walk(field, depth-1)
			}
		}
	}
}

func isTime(t reflect.Type) bool {
	return strings.HasPrefix(t.String(), "time.")
}
