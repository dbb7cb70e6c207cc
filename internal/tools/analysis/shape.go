package analysis

import "sort"

const maxShapeDepth = 3

// Shape summarizes the structure of a JSON value.
type Shape struct {
	Type     string            `json:"type"`
	Keys     []string          `json:"keys,omitempty"`
	Length   int               `json:"length,omitempty"`
	Fields   map[string]*Shape `json:"fields,omitempty"`
	Items    *Shape            `json:"items,omitempty"`
	MaxDepth bool              `json:"truncated,omitempty"`
}

func shapeOf(v any, depth int) *Shape {
	switch x := v.(type) {
	case map[string]any:
		s := &Shape{Type: "object", Length: len(x)}
		for k := range x {
			s.Keys = append(s.Keys, k)
		}
		sort.Strings(s.Keys)
		if depth >= maxShapeDepth {
			s.MaxDepth = true
			return s
		}
		s.Fields = make(map[string]*Shape, len(x))
		for k, child := range x {
			s.Fields[k] = shapeOf(child, depth+1)
		}
		return s
	case []any:
		s := &Shape{Type: "array", Length: len(x)}
		if len(x) > 0 {
			if depth >= maxShapeDepth {
				s.MaxDepth = true
				return s
			}
			s.Items = shapeOf(x[0], depth+1)
		}
		return s
	case string:
		return &Shape{Type: "string"}
	case float64:
		return &Shape{Type: "number"}
	case bool:
		return &Shape{Type: "boolean"}
	}
	return &Shape{Type: "null"}
}
