package configtest

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

type yamlNode struct {
	path string
	typ  reflect.Type
}

// CheckYAMLTags walks every struct reachable from config and reports the
// exported fields that would be marshalled even when they hold a zero value.
// Booleans, `yaml:"-"` fields and fields tagged `config:"allowempty"` are exempt.
func CheckYAMLTags(config any) error {
	root := reflect.TypeOf(config)
	if root == nil {
		return nil
	}

	var errs []error
	visited := make(map[reflect.Type]bool)
	queue := []yamlNode{{typ: root}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		typ := underlying(node.typ)
		if typ.Kind() != reflect.Struct || visited[typ] {
			continue
		}
		visited[typ] = true

		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			name, opts, skip := yamlTag(field)
			if skip {
				continue
			}
			path := node.path
			if !slices.Contains(opts, "inline") {
				path = joinPath(node.path, name)
				if !slices.Contains(opts, "omitempty") {
					errs = append(errs, fmt.Errorf("%s (%s.%s) missing omitempty tag", path, typ.String(), field.Name))
				}
			}
			queue = append(queue, yamlNode{path: path, typ: field.Type})
		}
	}
	return multierr.Combine(errs...)
}

// underlying strips pointers and containers down to the element type.
func underlying(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Array, reflect.Map, reflect.Slice, reflect.Pointer:
			t = t.Elem()
		default:
			return t
		}
	}
}

func yamlTag(field reflect.StructField) (name string, opts []string, skip bool) {
	if !field.IsExported() || field.Type.Kind() == reflect.Bool {
		return "", nil, true
	}
	if field.Tag.Get("config") == "allowempty" {
		return "", nil, true
	}
	parts := strings.Split(field.Tag.Get("yaml"), ",")
	if parts[0] == "-" {
		return "", nil, true
	}
	name = parts[0]
	if name == "" {
		name = strings.ToLower(field.Name)
	}
	return name, parts[1:], false
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
