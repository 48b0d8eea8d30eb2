package artifact

import "fmt"

// FieldKind constrains the JSON shape of a schema field.
type FieldKind int

const (
	KindAny FieldKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "any"
	}
}

// Field describes one schema entry.
type Field struct {
	Name string
	Kind FieldKind
}

// Schema is the structural contract for one artifact type. Schemas are
// loaded once at startup and treated as immutable thereafter.
type Schema struct {
	Required []Field
	Optional []Field
}

// DefaultSchemas returns the compiled-in schema set for the closed artifact
// type set.
func DefaultSchemas() map[Type]Schema {
	return map[Type]Schema{
		TypeAgent: {
			Required: []Field{
				{Name: "system_prompt", Kind: KindString},
				{Name: "model", Kind: KindString},
			},
			Optional: []Field{
				{Name: "tools", Kind: KindList},
				{Name: "temperature", Kind: KindNumber},
				{Name: "permissions", Kind: KindList},
				{Name: "code", Kind: KindString},
			},
		},
		TypeWorkflow: {
			Required: []Field{
				{Name: "steps", Kind: KindList},
			},
			Optional: []Field{
				{Name: "inputs", Kind: KindMap},
				{Name: "outputs", Kind: KindMap},
				{Name: "permissions", Kind: KindList},
			},
		},
		TypeTool: {
			Required: []Field{
				{Name: "code", Kind: KindString},
				{Name: "entrypoint", Kind: KindString},
			},
			Optional: []Field{
				{Name: "parameters", Kind: KindMap},
				{Name: "permissions", Kind: KindList},
			},
		},
		TypeCapability: {
			Required: []Field{
				{Name: "provides", Kind: KindList},
			},
			Optional: []Field{
				{Name: "requires", Kind: KindList},
				{Name: "permissions", Kind: KindList},
				{Name: "code", Kind: KindString},
			},
		},
	}
}

// checkSchema validates content against the schema, appending one error per
// violation.
func checkSchema(res *Result, typ Type, content map[string]any, schema Schema) {
	for _, f := range schema.Required {
		v, ok := content[f.Name]
		if !ok {
			res.addError("%s content missing required field %q", typ, f.Name)
			continue
		}
		if !kindMatches(f.Kind, v) {
			res.addError("%s field %q must be a %s", typ, f.Name, f.Kind)
		}
	}
	for _, f := range schema.Optional {
		v, ok := content[f.Name]
		if !ok {
			continue
		}
		if !kindMatches(f.Kind, v) {
			res.addError("%s field %q must be a %s", typ, f.Name, f.Kind)
		}
	}
}

func kindMatches(k FieldKind, v any) bool {
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindList:
		_, ok := v.([]any)
		if !ok {
			_, ok = v.([]string)
		}
		return ok
	case KindMap:
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

// schemaFor resolves the schema for typ from the immutable registry.
func schemaFor(schemas map[Type]Schema, typ Type) (Schema, error) {
	s, ok := schemas[typ]
	if !ok {
		return Schema{}, fmt.Errorf("%w: no schema for %s", ErrUnknownType, typ)
	}
	return s, nil
}
