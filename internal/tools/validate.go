package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"hearth/internal/agent/ports"
)

// validateArguments checks args against the tool's declared parameter
// schema. The tool function is never invoked with arguments that fail here.
func validateArguments(schema ports.ParameterSchema, args map[string]any) error {
	if schema.Type != "" && schema.Type != "object" {
		return fmt.Errorf("unsupported schema root type %q", schema.Type)
	}

	var missing []string
	for _, name := range schema.Required {
		if v, ok := args[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}

	for name, value := range args {
		prop, ok := schema.Properties[name]
		if !ok {
			return fmt.Errorf("unexpected argument %q", name)
		}
		if value == nil {
			continue
		}
		if err := validateValue(name, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(name string, prop ports.Property, value any) error {
	switch prop.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return typeError(name, "string", value)
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, s) {
			return fmt.Errorf("argument %q must be one of [%s], got %q",
				name, joinEnum(prop.Enum), s)
		}

	case "number":
		if _, ok := toFloat(value); !ok {
			return typeError(name, "number", value)
		}

	case "integer":
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) {
			return typeError(name, "integer", value)
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(name, "boolean", value)
		}

	case "array":
		items, ok := value.([]any)
		if !ok {
			return typeError(name, "array", value)
		}
		if prop.Items != nil {
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", name, i), *prop.Items, item); err != nil {
					return err
				}
			}
		}

	case "object":
		if _, ok := value.(map[string]any); !ok {
			return typeError(name, "object", value)
		}

	case "":
		// untyped property accepts anything

	default:
		return fmt.Errorf("argument %q has unsupported schema type %q", name, prop.Type)
	}
	return nil
}

func typeError(name, want string, got any) error {
	return fmt.Errorf("argument %q must be a %s, got %T", name, want, got)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func enumContains(list []any, s string) bool {
	for _, v := range list {
		if str, ok := v.(string); ok && str == s {
			return true
		}
	}
	return false
}

func joinEnum(list []any) string {
	parts := make([]string, 0, len(list))
	for _, v := range list {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ", ")
}
