package manifest

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadCatalog reads a YAML message catalog and flattens it into dotted
// identifiers. When locale is set and the catalog has a top-level section for
// it, only that section is used.
func LoadCatalog(path, locale string) (map[string]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // configured catalog path
	if err != nil {
		return nil, fmt.Errorf("failed to read message catalog: %w", err)
	}
	return ParseCatalog(data, locale)
}

// ParseCatalog flattens YAML catalog data, see LoadCatalog
func ParseCatalog(data []byte, locale string) (map[string]string, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}

	if section, ok := root[locale].(map[string]any); ok && locale != "" {
		root = section
	}

	messages := make(map[string]string)
	flatten("", root, messages)
	return messages, nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			flatten(join(prefix, key), v[key], out)
		}
	case []any:
		for i, item := range v {
			flatten(join(prefix, strconv.Itoa(i)), item, out)
		}
	case nil:
	default:
		if prefix != "" {
			out[prefix] = fmt.Sprint(v)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
