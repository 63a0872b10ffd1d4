package dataquery

import (
	"fmt"
	"time"

	"github.com/albarami/qnwis/pkg/models"
)

// BindParams coerces the caller-supplied params to the types declared on
// def, applies declared defaults for missing optional parameters, and
// range-checks the result. It never touches the template text — binding
// happens only through the named placeholders the Engine substitutes;
// this function exists solely to validate and normalize the values that
// will be handed to the engine's parameter-bind facility.
func BindParams(def *models.QueryDefinition, input map[string]any) (map[string]any, error) {
	allowed := def.AllowedParamNames()
	for name := range input {
		if !allowed[name] {
			return nil, fmt.Errorf("%w: param %q not declared on query %q", ErrParamValidation, name, def.QueryID)
		}
	}
	return ValidateParams(def.Parameters, input)
}

// ValidateParams coerces input against a bare parameter schema (no
// query-specific allowed-name check), applying declared defaults and
// range bounds. Used directly by query binding above and by the
// orchestrator's classify stage to validate a Task's params against its
// intent's declared param_schema (spec §4.1 "Inputs: params validated
// against that intent's schema").
func ValidateParams(parameters []models.ParamDefinition, input map[string]any) (map[string]any, error) {
	bound := make(map[string]any, len(parameters))
	for _, p := range parameters {
		raw, present := input[p.Name]
		if !present {
			if p.Required {
				return nil, fmt.Errorf("%w: missing required param %q", ErrParamValidation, p.Name)
			}
			if p.Default == nil {
				continue
			}
			raw = p.Default
		}

		coerced, err := coerce(p.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: param %q: %v", ErrParamValidation, p.Name, err)
		}

		if err := checkRange(p, coerced); err != nil {
			return nil, fmt.Errorf("%w: param %q: %v", ErrParamValidation, p.Name, err)
		}

		bound[p.Name] = coerced
	}

	return bound, nil
}

func coerce(t models.ParamType, v any) (any, error) {
	switch t {
	case models.ParamString:
		switch val := v.(type) {
		case string:
			return val, nil
		default:
			return nil, fmt.Errorf("expected string, got %T", v)
		}
	case models.ParamInt:
		switch val := v.(type) {
		case int:
			return val, nil
		case int64:
			return int(val), nil
		case float64:
			if val != float64(int(val)) {
				return nil, fmt.Errorf("expected int, got non-integral float %v", val)
			}
			return int(val), nil
		default:
			return nil, fmt.Errorf("expected int, got %T", v)
		}
	case models.ParamFloat:
		switch val := v.(type) {
		case float64:
			return val, nil
		case int:
			return float64(val), nil
		default:
			return nil, fmt.Errorf("expected float, got %T", v)
		}
	case models.ParamBool:
		val, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return val, nil
	case models.ParamDate:
		switch val := v.(type) {
		case time.Time:
			return val, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, val)
			if err != nil {
				parsed, err = time.Parse("2006-01-02", val)
				if err != nil {
					return nil, fmt.Errorf("expected ISO-8601 date, got %q", val)
				}
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("expected date, got %T", v)
		}
	default:
		return nil, fmt.Errorf("unknown param type %q", t)
	}
}

func checkRange(p models.ParamDefinition, v any) error {
	if p.Range == nil {
		return nil
	}

	numeric, ok := asFloat(v)
	if !ok {
		// Range bounds only apply to numeric/date params; non-numeric
		// values pass through untouched.
		return nil
	}

	if p.Range.Min != nil {
		if min, ok := asFloat(p.Range.Min); ok && numeric < min {
			return fmt.Errorf("value %v below minimum %v", v, min)
		}
	}
	if p.Range.Max != nil {
		if max, ok := asFloat(p.Range.Max); ok && numeric > max {
			return fmt.Errorf("value %v above maximum %v", v, max)
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case time.Time:
		return float64(val.Unix()), true
	default:
		return 0, false
	}
}
