package param

import (
	"encoding/json"
	"fmt"

	"github.com/sarchlab/mediagraph/result"
)

// Marshal encodes an object as JSON.
func Marshal(obj *Object) ([]byte, error) {
	return json.Marshal(obj)
}

// Unmarshal decodes an object and validates every value.
func Unmarshal(data []byte) (*Object, error) {
	obj := new(Object)
	if err := json.Unmarshal(data, obj); err != nil {
		return nil, fmt.Errorf("decode param: %v: %w", err, result.ErrInvalidArgument)
	}

	for _, p := range obj.Props {
		if err := p.Value.Validate(); err != nil {
			return nil, fmt.Errorf("decode param key %d: %w", p.Key, err)
		}
	}

	return obj, nil
}
