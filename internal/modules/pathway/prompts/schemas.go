package prompts

func StringArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

func NumberSchema() map[string]any {
	return map[string]any{"type": "number"}
}

func IntSchema() map[string]any {
	return map[string]any{"type": "integer"}
}

func ObjectSchema(properties map[string]any, required []string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// assignmentListSchema is shared by the coarse and refinement passes:
// a list of (index, pathway, confidence) records.
func assignmentListSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"assignments": map[string]any{
			"type": "array",
			"items": ObjectSchema(map[string]any{
				"index":      IntSchema(),
				"pathway":    map[string]any{"type": "string"},
				"confidence": NumberSchema(),
			}, []string{"index", "pathway", "confidence"}),
		},
	}, []string{"assignments"})
}

func synonymGroupsSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"groups": map[string]any{
			"type": "array",
			"items": ObjectSchema(map[string]any{
				"canonical": map[string]any{"type": "string"},
				"members":   StringArraySchema(),
			}, []string{"canonical", "members"}),
		},
	}, []string{"groups"})
}

func chainSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"chain":      StringArraySchema(),
		"confidence": NumberSchema(),
	}, []string{"chain", "confidence"})
}

func siblingsSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"siblings":   StringArraySchema(),
		"confidence": NumberSchema(),
	}, []string{"siblings", "confidence"})
}

func evidenceSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"results": map[string]any{
			"type": "array",
			"items": ObjectSchema(map[string]any{
				"index":     IntSchema(),
				"valid":     map[string]any{"type": "boolean"},
				"mechanism": map[string]any{"type": "string"},
				"citations": map[string]any{
					"type": "array",
					"items": ObjectSchema(map[string]any{
						"title":   map[string]any{"type": "string"},
						"journal": map[string]any{"type": "string"},
						"year":    IntSchema(),
						"quote":   map[string]any{"type": "string"},
					}, []string{"title"}),
				},
			}, []string{"index", "valid"}),
		},
	}, []string{"results"})
}
