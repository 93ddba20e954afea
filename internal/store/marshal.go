package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/pagetree/internal/ir"
)

// marshalProps converts props to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so the stored text hashes identically to
// the in-memory row.
func marshalProps(props ir.Object) (string, error) {
	if props == nil {
		props = ir.Object{}
	}
	data, err := ir.MarshalCanonical(props)
	if err != nil {
		return "", fmt.Errorf("marshal props: %w", err)
	}
	return string(data), nil
}

// unmarshalProps parses canonical JSON TEXT back to an Object.
// ir.Object.UnmarshalJSON keeps integers exact (no float64 round trip).
func unmarshalProps(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal props: %w", err)
	}
	return obj, nil
}
