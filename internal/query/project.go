package query

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Project renders v as a JSON object holding only the named keys. A dotted
// name such as "transaction.id" selects one key of a nested object. Keys
// absent from v's encoding are skipped.
func Project(v any, names []string) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var full map[string]any
	if err := dec.Decode(&full); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(names))
	for _, name := range names {
		head, tail, nested := strings.Cut(name, ".")
		val, ok := full[head]
		if !ok {
			continue
		}
		if !nested {
			out[head] = val
			continue
		}
		obj, ok := val.(map[string]any)
		if !ok {
			continue
		}
		sub, ok := obj[tail]
		if !ok {
			continue
		}
		dst, _ := out[head].(map[string]any)
		if dst == nil {
			dst = make(map[string]any)
			out[head] = dst
		}
		dst[tail] = sub
	}
	return out, nil
}
