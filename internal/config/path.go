package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// Get returns the value at a dotted path such as "agent.effort" or
// "apiKeys.claude".
func (c *Config) Get(path string) (any, error) {
	v, err := lookup(reflect.ValueOf(c).Elem(), path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Set parses value for the field at path and assigns it. Lists are comma
// separated. The change is rolled back when it breaks validation.
func (c *Config) Set(path, value string) error {
	prev := c.clone()
	if err := assign(reflect.ValueOf(c).Elem(), path, value); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		*c = *prev
		return err
	}
	return nil
}

// Keys lists every dotted path, sorted. Map entries appear only when set.
func (c *Config) Keys() []string {
	var out []string
	var walk func(v reflect.Value, prefix string)
	walk = func(v reflect.Value, prefix string) {
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			name := yamlName(t.Field(i))
			if name == "" {
				continue
			}
			fv := v.Field(i)
			switch fv.Kind() {
			case reflect.Struct:
				walk(fv, prefix+name+".")
			case reflect.Map:
				for _, k := range fv.MapKeys() {
					out = append(out, prefix+name+"."+k.String())
				}
			default:
				out = append(out, prefix+name)
			}
		}
	}
	walk(reflect.ValueOf(c).Elem(), "")
	sort.Strings(out)
	return out
}

func (c *Config) clone() *Config {
	cp := *c
	if c.APIKeys != nil {
		cp.APIKeys = make(map[string]string, len(c.APIKeys))
		for k, v := range c.APIKeys {
			cp.APIKeys[k] = v
		}
	}
	ts := &cp.Agent.ToolSecurity
	for _, s := range []*[]string{&ts.AllowedCommands, &ts.BlockedCommands, &ts.AllowedPaths, &ts.BlockedExtensions, &ts.AllowedDomains, &ts.BlockedDomains} {
		*s = append([]string(nil), (*s)...)
	}
	return &cp
}

func unknownKey(path string) error {
	return engine.Errorf(engine.KindInvalidInput, "unknown config key %q", path)
}

// field walks struct fields by yaml name. A trailing segment after a map
// field is returned as mapKey.
func field(root reflect.Value, path string) (v reflect.Value, mapKey string, err error) {
	segs := strings.Split(path, ".")
	v = root
	for i, seg := range segs {
		if v.Kind() == reflect.Map {
			if i != len(segs)-1 || seg == "" {
				return reflect.Value{}, "", unknownKey(path)
			}
			return v, seg, nil
		}
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, "", unknownKey(path)
		}
		found := false
		t := v.Type()
		for j := 0; j < t.NumField(); j++ {
			if yamlName(t.Field(j)) == seg {
				v = v.Field(j)
				found = true
				break
			}
		}
		if !found {
			return reflect.Value{}, "", unknownKey(path)
		}
	}
	return v, "", nil
}

func lookup(root reflect.Value, path string) (reflect.Value, error) {
	v, key, err := field(root, path)
	if err != nil {
		return reflect.Value{}, err
	}
	if key == "" {
		return v, nil
	}
	e := v.MapIndex(reflect.ValueOf(key))
	if !e.IsValid() {
		return reflect.Zero(v.Type().Elem()), nil
	}
	return e, nil
}

func assign(root reflect.Value, path, raw string) error {
	v, key, err := field(root, path)
	if err != nil {
		return err
	}
	if key != "" {
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		if raw == "" {
			v.SetMapIndex(reflect.ValueOf(key), reflect.Value{})
			return nil
		}
		v.SetMapIndex(reflect.ValueOf(key), reflect.ValueOf(raw))
		return nil
	}

	bad := func(err error) error {
		return engine.Errorf(engine.KindInvalidInput, "invalid value %q for %s: %v", raw, path, err)
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return bad(err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return bad(err)
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bad(err)
		}
		v.SetFloat(f)
	case reflect.Slice:
		var items []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		v.Set(reflect.ValueOf(items))
	default:
		return engine.Errorf(engine.KindInvalidInput, "%s is a section, not a value", path)
	}
	return nil
}

// FormatValue renders a Get result for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case []string:
		return strings.Join(x, ",")
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return strings.Join(keys, ",")
	}
	return fmt.Sprint(v)
}
