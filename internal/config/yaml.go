package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON returns data as JSON so both formats go through the strict decoder.
// .yaml/.yml files are YAML and .json files are JSON; anything else is
// treated as JSON when it starts with '{' and as YAML otherwise.
func toJSON(name string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
	default:
		if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
			return data, nil
		}
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	if doc == nil {
		// An empty file is an empty config, not null.
		return []byte("{}"), nil
	}
	j, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	return j, nil
}

// stringKeys rewrites YAML maps so encoding/json accepts them.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case []any:
		for i, e := range x {
			x[i] = stringKeys(e)
		}
		return x
	}
	return v
}
