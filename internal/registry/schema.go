package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ParamType is the JSON type a positional parameter must decode to.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
)

// Domain marks parameters that get policy warnings during validation.
type Domain string

const (
	DomainNone    Domain = ""
	DomainPath    Domain = "path"
	DomainCommand Domain = "command"
	DomainURL     Domain = "url"
)

// Param describes one positional parameter of a tool method.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Domain      Domain
	Description string
}

// MethodSchema is the ordered parameter contract of a tool method.
type MethodSchema struct {
	Name        string
	Description string
	Params      []Param
}

// MinArity is the number of required parameters.
func (m MethodSchema) MinArity() int {
	n := 0
	for _, p := range m.Params {
		if p.Required {
			n++
		}
	}
	return n
}

// MaxArity is the total number of parameters.
func (m MethodSchema) MaxArity() int {
	return len(m.Params)
}

// ToolSchema lists the methods of a tool.
type ToolSchema struct {
	Name        string
	Description string
	Methods     []MethodSchema
}

// Method looks up a method schema by name.
func (s ToolSchema) Method(name string) (MethodSchema, bool) {
	for _, m := range s.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSchema{}, false
}

// compiledMethod pairs a method schema with its compiled JSON schema.
type compiledMethod struct {
	MethodSchema
	schema *gojsonschema.Schema
}

// jsonSchema renders the method contract as a JSON Schema over the
// positional parameter array.
func (m MethodSchema) jsonSchema() (map[string]any, error) {
	seenOptional := false
	items := make([]any, 0, len(m.Params))
	for i, p := range m.Params {
		if p.Required && seenOptional {
			return nil, fmt.Errorf("method %s: required param %q follows an optional one", m.Name, p.Name)
		}
		if !p.Required {
			seenOptional = true
		}
		typ := p.Type
		if typ == "" {
			typ = TypeString
		}
		item := map[string]any{"type": string(typ), "title": p.Name}
		if typ == TypeString && p.Required && p.Domain != DomainNone {
			item["minLength"] = 1
		}
		if p.Name == "" {
			item["title"] = "param" + strconv.Itoa(i)
		}
		items = append(items, item)
	}
	return map[string]any{
		"$schema":         "http://json-schema.org/draft-04/schema#",
		"type":            "array",
		"minItems":        m.MinArity(),
		"maxItems":        m.MaxArity(),
		"items":           items,
		"additionalItems": false,
	}, nil
}

func compileMethod(m MethodSchema) (*compiledMethod, error) {
	doc, err := m.jsonSchema()
	if err != nil {
		return nil, err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("method %s: invalid schema: %w", m.Name, err)
	}
	return &compiledMethod{MethodSchema: m, schema: schema}, nil
}

// decodeParams converts positional string params to the JSON values their
// declared types expect. Values that fail to decode stay strings so the
// schema reports a type error.
func (c *compiledMethod) decodeParams(params []string) []any {
	out := make([]any, len(params))
	for i, raw := range params {
		out[i] = raw
		if i >= len(c.Params) {
			continue
		}
		switch c.Params[i].Type {
		case TypeInteger:
			if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
				out[i] = n
			}
		case TypeBoolean:
			if b, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
				out[i] = b
			}
		case TypeObject:
			if strings.TrimSpace(raw) == "" {
				out[i] = map[string]any{}
				continue
			}
			var obj map[string]any
			if err := json.Unmarshal([]byte(raw), &obj); err == nil {
				out[i] = obj
			}
		}
	}
	return out
}

// validate checks params against the compiled schema and returns every
// violation.
func (c *compiledMethod) validate(params []string) ([]string, error) {
	result, err := c.schema.Validate(gojsonschema.NewGoLoader(c.decodeParams(params)))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, c.describe(e))
	}
	return msgs, nil
}

func (c *compiledMethod) describe(e gojsonschema.ResultError) string {
	field := e.Field()
	if idx, err := strconv.Atoi(field); err == nil && idx < len(c.Params) {
		return fmt.Sprintf("param %d (%s): %s", idx, c.Params[idx].Name, e.Description())
	}
	return fmt.Sprintf("%s: %s", c.Name, e.Description())
}

// ObjectParam decodes an optional JSON object parameter into v. Empty input
// leaves v untouched.
func ObjectParam(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("invalid options object: %w", err)
	}
	return nil
}
