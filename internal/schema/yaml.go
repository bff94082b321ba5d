package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlToJSON re-encodes a YAML document as JSON so both formats share one
// validation and decoding path. Floats keep a fractional marker so that
// "1.0" in YAML still classifies as a double.
func yamlToJSON(data []byte) ([]byte, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	normalized, err := normalizeYAML(tree)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode yaml as json: %w", err)
	}
	return out, nil
}

func normalizeYAML(node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil

	case map[any]any:
		return nil, fmt.Errorf("%w: yaml mappings must have string keys", ErrSchemaViolation)

	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrInvalidValue)
		}
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return json.Number(s), nil

	case time.Time:
		// Unquoted YAML timestamps.
		return v.UTC().Format(time.RFC3339Nano), nil

	default:
		return v, nil
	}
}
