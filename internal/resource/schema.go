package resource

import (
	"fmt"

	"github.com/covault/covault/internal/common"
)

// leafFunc handles one scalar leaf during a schema walk and returns the
// value to keep in the output props. Object and list nodes are traversed by
// the walker itself; everything else reaches the leaf.
type leafFunc func(path string, desc PropDescription, value any) (any, error)

// walkProps drives every schema-shaped pass: validation, buffer checking,
// buffer committing and buffer releasing all ride it with a different leaf.
// In strict mode unknown keys, missing non-optional keys and null
// non-nullable values fail; the lenient mode (used when re-walking stored
// props) skips them instead.
func walkProps(path string, props map[string]PropDescription, values map[string]any,
	strict bool, leaf leafFunc) (map[string]any, error) {

	if strict {
		for name := range values {
			if _, ok := props[name]; !ok {
				return nil, common.NewError(common.CodeInvalidParams,
					"unknown prop %q", joinPath(path, name))
			}
		}
	}

	out := make(map[string]any, len(values))
	for name, desc := range props {
		value, present := values[name]
		if !present {
			if !desc.Optional && strict {
				return nil, common.NewError(common.CodeInvalidParams,
					"missing prop %q", joinPath(path, name))
			}
			continue
		}
		if value == nil {
			if !desc.Nullable && strict {
				return nil, common.NewError(common.CodeInvalidParams,
					"prop %q is not nullable", joinPath(path, name))
			}
			out[name] = nil
			continue
		}
		walked, err := walkValue(joinPath(path, name), desc, value, strict, leaf)
		if err != nil {
			return nil, err
		}
		out[name] = walked
	}
	return out, nil
}

func walkValue(path string, desc PropDescription, value any, strict bool, leaf leafFunc) (any, error) {
	switch desc.Kind {
	case PropObject:
		m, ok := value.(map[string]any)
		if !ok {
			if !strict {
				return value, nil
			}
			return nil, common.NewError(common.CodeInvalidParams, "prop %q is not an object", path)
		}
		return walkProps(path, desc.Props, m, strict, leaf)
	case PropList:
		s, ok := value.([]any)
		if !ok {
			if !strict {
				return value, nil
			}
			return nil, common.NewError(common.CodeInvalidParams, "prop %q is not a list", path)
		}
		out := make([]any, len(s))
		for i, el := range s {
			walked, err := walkValue(fmt.Sprintf("%s[%d]", path, i), *desc.Elem, el, strict, leaf)
			if err != nil {
				return nil, err
			}
			out[i] = walked
		}
		return out, nil
	default:
		return leaf(path, desc, value)
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float32:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}
