package loadspec

import (
	"fmt"
	"os"
	"sort"
	"strings"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"gopkg.in/yaml.v3"
)

var (
	loadKeys    = []string{"features", "prepare", "primary", "xmlids"}
	loadSubkeys = []string{"edge", "node"}
)

func allowed(list []string, key string) bool {
	for _, k := range list {
		if k == key {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case int, int64, float64:
		return "number"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "mapping"
	}
	return fmt.Sprintf("%T", v)
}

// Check returns every problem in raw load instructions, in key order
func Check(raw map[string]interface{}) []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	allowedKeys := strings.Join(loadKeys, ", ")
	allowedSub := strings.Join(loadSubkeys, ", ")

	for _, key := range sortedKeys(raw) {
		val := raw[key]
		if !allowed(loadKeys, key) {
			add("only these keys are allowed: %s, not %s", allowedKeys, key)
			continue
		}
		switch key {
		case "xmlids":
			sub, ok := val.(map[string]interface{})
			if !ok {
				add("the value of %s should be a mapping, not %s", key, typeName(val))
				continue
			}
			for _, subkey := range sortedKeys(sub) {
				if !allowed(loadSubkeys, subkey) {
					add("under %s only these keys are allowed: %s, not %s", key, allowedSub, subkey)
				} else if _, ok := sub[subkey].(bool); !ok {
					add("under %s and then %s only these values are allowed: false, true, not %v", key, subkey, sub[subkey])
				}
			}
		case "primary":
			if _, ok := val.(bool); !ok {
				add("under %s only these values are allowed: false, true, not %v", key, val)
			}
		case "features":
			nss, ok := val.(map[string]interface{})
			if !ok {
				add("the value of %s should be a mapping, not %s", key, typeName(val))
				continue
			}
			for _, ns := range sortedKeys(nss) {
				sub, ok := nss[ns].(map[string]interface{})
				if !ok {
					add("under %s and then %s the value should be a mapping, not %s", key, ns, typeName(nss[ns]))
					continue
				}
				for _, subkey := range sortedKeys(sub) {
					if !allowed(loadSubkeys, subkey) {
						add("under %s and then %s only these keys are allowed: %s, not %s", key, ns, allowedSub, subkey)
					} else if _, ok := sub[subkey].([]interface{}); !ok {
						add("under %s and then %s and then %s the value should be a list, not %s", key, ns, subkey, typeName(sub[subkey]))
					}
				}
			}
		case "prepare":
			if _, ok := val.([]interface{}); !ok {
				add("the value of %s should be an ordered list, not %s", key, typeName(val))
			}
		}
	}
	return problems
}

// FromRaw checks raw load instructions and converts them into a Spec
func FromRaw(raw map[string]interface{}) (*Spec, error) {
	if problems := Check(raw); len(problems) > 0 {
		return nil, fabricerrors.InvalidLoadSpec(problems)
	}

	spec := &Spec{}
	if x, ok := raw["xmlids"].(map[string]interface{}); ok {
		spec.XMLIDs.Node, _ = x["node"].(bool)
		spec.XMLIDs.Edge, _ = x["edge"].(bool)
	}
	spec.Primary, _ = raw["primary"].(bool)

	var problems []string
	if nss, ok := raw["features"].(map[string]interface{}); ok {
		for _, ns := range sortedKeys(nss) {
			sub := nss[ns].(map[string]interface{})
			for _, subkey := range loadSubkeys {
				list, _ := sub[subkey].([]interface{})
				for _, item := range list {
					name, ok := item.(string)
					if !ok || name == "" {
						problems = append(problems, fmt.Sprintf("under features and then %s and then %s the names should be strings, not %v", ns, subkey, item))
						continue
					}
					ref, err := parseName(ns, name)
					if err != nil {
						problems = append(problems, err.Error())
						continue
					}
					if subkey == "node" {
						spec.NodeFeatures = append(spec.NodeFeatures, ref)
					} else {
						spec.EdgeFeatures = append(spec.EdgeFeatures, ref)
					}
				}
			}
		}
	}
	if list, ok := raw["prepare"].([]interface{}); ok {
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				problems = append(problems, fmt.Sprintf("the names under prepare should be strings, not %v", item))
				continue
			}
			spec.Prepare = append(spec.Prepare, name)
		}
	}
	if len(problems) > 0 {
		return nil, fabricerrors.InvalidLoadSpec(problems)
	}
	return spec, nil
}

// Parse decodes YAML load instructions
func Parse(data []byte) (*Spec, error) {
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fabricerrors.InvalidArgument("load instructions are not valid YAML", err)
	}
	return FromRaw(raw)
}

// ReadFile decodes YAML load instructions from a file
func ReadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read load instructions: %w", err)
	}
	return Parse(data)
}
