package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes converts .yaml/.yml content to JSON so both formats go
// through the same strict decoder. The returned format is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	if doc == nil {
		// An empty document decodes like "{}".
		return []byte("{}"), "yaml", nil
	}
	v, err := jsonValue(doc, "")
	if err != nil {
		return nil, "yaml", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml to json: %w", err)
	}
	return out, "yaml", nil
}

// jsonValue rewrites decoded YAML into types encoding/json accepts. Mapping
// keys must be scalars; at names the offending key in errors.
func jsonValue(in any, at string) (any, error) {
	switch x := in.(type) {
	case map[string]any:
		for k, v := range x {
			nv, err := jsonValue(v, join(at, k))
			if err != nil {
				return nil, err
			}
			x[k] = nv
		}
		return x, nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			switch k.(type) {
			case map[string]any, map[any]any, []any:
				return nil, fmt.Errorf("yaml: non-scalar key under %q", at)
			}
			key := fmt.Sprint(k)
			nv, err := jsonValue(v, join(at, key))
			if err != nil {
				return nil, err
			}
			m[key] = nv
		}
		return m, nil
	case []any:
		for i, v := range x {
			nv, err := jsonValue(v, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			x[i] = nv
		}
		return x, nil
	default:
		return in, nil
	}
}

func join(at, key string) string {
	if at == "" {
		return key
	}
	return at + "." + key
}
