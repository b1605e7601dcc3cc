package llm

import "encoding/json"

// jsonUnmarshalLoose decodes raw arguments into a map, treating an empty
// payload as an empty object. Vendors accept {} where a model emitted no
// arguments at all.
func jsonUnmarshalLoose(raw json.RawMessage, out *map[string]any) error {
	if len(raw) == 0 {
		*out = map[string]any{}
		return nil
	}
	return json.Unmarshal(raw, out)
}
