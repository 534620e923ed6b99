package query

import (
	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"
)

// project reduces rows to the selected fields, applied after pagination.
// Dot-separated paths keep their nesting in the output; absent fields are
// omitted from the row rather than set to null.
func project(rows []row, fields []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(rows))

	for _, r := range rows {
		doc := []byte(`{}`)
		for _, field := range fields {
			val := r.resolve(field)
			if !val.Exists() {
				continue
			}
			var err error
			doc, err = sjson.SetRawBytes(doc, field, []byte(val.Raw))
			if err != nil {
				return nil, err
			}
		}

		var m map[string]any
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	return out, nil
}
