package models

// ParameterSchema renders the signature's typed parameter list as a JSON
// Schema object, the shape both the provider wire format and argument
// validation expect.
func (t ToolSignature) ParameterSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	var required []string

	for _, p := range t.Params {
		prop := map[string]any{"type": schemaType(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func schemaType(t string) string {
	switch t {
	case "string", "integer", "number", "boolean", "array", "object":
		return t
	case "int":
		return "integer"
	case "float":
		return "number"
	case "bool":
		return "boolean"
	default:
		return "string"
	}
}
