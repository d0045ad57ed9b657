// Package codec encodes computation results for the trip from the child
// process back to the supervisor.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes with Core Deterministic Encoding (RFC 8949 §4.2). Decoding
// into any yields int64 for integers, map[string]any for maps whose keys
// are all strings and map[any]any for every other map.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var defaultCBOR = mustCBOR()

// Default returns the shared CBOR codec.
func Default() *CBOR {
	return defaultCBOR
}

func mustCBOR() *CBOR {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		IntDec: cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
	return &CBOR{enc: enc, dec: dec}
}

// Encode serializes v.
func (c *CBOR) Encode(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

// Decode parses one CBOR data item. Empty input, malformed input and
// trailing bytes are errors.
func (c *CBOR) Decode(data []byte) (any, error) {
	var v any
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

// normalize rewrites string-keyed maps to map[string]any, recursively.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		stringKeys := true
		for k, e := range t {
			t[k] = normalize(e)
			if _, ok := k.(string); !ok {
				stringKeys = false
			}
		}
		if !stringKeys {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k.(string)] = e
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	default:
		return v
	}
}

// DecodeInto parses data into target, for callers that know the result type.
func (c *CBOR) DecodeInto(data []byte, target any) error {
	return c.dec.Unmarshal(data, target)
}
