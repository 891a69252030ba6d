package options

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
)

// ValidationResult is produced fresh by every Validate call.
// Options is always fully populated, even when Valid is false.
type ValidationResult struct {
	Valid   bool           `json:"is_valid"`
	Errors  []string       `json:"errors"`
	Options DecoderOptions `json:"validated_options"`
}

// Validate checks candidate against Schema. A nil candidate means "use all
// defaults" and is valid. Type mismatches and unknown keys are reported as
// errors; mismatched values are replaced by defaults and unknown keys are
// dropped.
func Validate(candidate map[string]any) ValidationResult {
	res := ValidationResult{
		Valid:   true,
		Errors:  []string{},
		Options: Defaults(),
	}
	if candidate == nil {
		return res
	}

	for _, name := range Names() {
		raw, ok := candidate[name]
		if !ok {
			continue
		}
		spec := Schema[name]
		v, ok := raw.(bool)
		if !ok || spec.Type != KindBoolean {
			res.Errors = append(res.Errors, fmt.Sprintf("invalid type for option %q: expected %s, got %s", name, spec.Type, typeName(raw)))
			continue
		}
		res.Options[name] = v
	}

	unknown := make([]string, 0)
	for name := range candidate {
		if _, ok := Schema[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown option %q", name))
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// FromAny normalizes a value read from a store into a candidate map.
// It returns nil when v carries no options.
func FromAny(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(x) == 0 {
			return nil, nil
		}
		return x, nil
	case DecoderOptions:
		if len(x) == 0 {
			return nil, nil
		}
		return x.ToMap(), nil
	case map[string]bool:
		if len(x) == 0 {
			return nil, nil
		}
		return DecoderOptions(x).ToMap(), nil
	case string:
		return fromJSON([]byte(x))
	case []byte:
		return fromJSON(x)
	default:
		return nil, errors.Newf("unsupported options value of type %T", v)
	}
}

func fromJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "decode options json")
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
