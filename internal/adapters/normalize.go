package adapters

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RenameProductsToReactants rewrites a list of per-SMILES results so that
// each element's "products" field is named "reactants". Sequence models call
// their predicted precursors products; the gateway calls them reactants.
// Elements that already carry "reactants" keep it and lose "products".
func RenameProductsToReactants(body []byte) ([]byte, error) {
	return renameElementField(body, "products", "reactants")
}

// renameElementField renames from -> to in every object of a JSON array.
func renameElementField(body []byte, from, to string) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("expected a JSON array, got %s", root.Type)
	}

	out := body
	var err error
	for i, el := range root.Array() {
		value := el.Get(from)
		if !value.Exists() {
			continue
		}
		if !el.Get(to).Exists() {
			out, err = sjson.SetRawBytes(out, fmt.Sprintf("%d.%s", i, to), []byte(value.Raw))
			if err != nil {
				return nil, err
			}
		}
		out, err = sjson.DeleteBytes(out, fmt.Sprintf("%d.%s", i, from))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExtractPriority reads the optional "priority" field of an async request
// body. A missing or null field returns nil.
func ExtractPriority(body []byte) (*int, error) {
	value := gjson.GetBytes(body, "priority")
	switch value.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		if value.Num != math.Trunc(value.Num) {
			return nil, newError(ErrValidation, nil, "priority must be an integer")
		}
		p := int(value.Int())
		return &p, nil
	default:
		return nil, newError(ErrValidation, nil, "priority must be an integer")
	}
}

// regroup pairs parallel lists element-wise into one record per index. The
// shortest list bounds the output, matching zip semantics.
func regroup(n int, build func(i int) RetroResult) []RetroResult {
	out := make([]RetroResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, build(i))
	}
	return out
}

func minLen(lengths ...int) int {
	if len(lengths) == 0 {
		return 0
	}
	m := lengths[0]
	for _, l := range lengths[1:] {
		if l < m {
			m = l
		}
	}
	return m
}
