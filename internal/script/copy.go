package script

// deepCopy clones the JSON-shaped value graphs that come out of
// configuration: maps, slices, and scalars. Anything else is shared by
// reference, which is fine for config data decoded from JSON.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyStringMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

func deepCopyStringMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}
