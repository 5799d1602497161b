// Package ids provides canonical JSON hashing used by the result cache key,
// grounded on
// pipeline/internal/domain/models.go's SHA-256 hashing pattern.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// CanonicalJSON renders v as JSON with sorted object keys and normalised
// numeric forms (integers as integers, floats in their shortest round-trip
// form), matching the canonical-hash definition used for cache keys. It works on
// already-decoded values (the interface{} trees json.Unmarshal produces), not
// on raw bytes such as a json.RawMessage, so callers must Unmarshal first.
func CanonicalJSON(v any) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return marshalCanonical(norm)
}

// CanonicalHash computes the hex-encoded SHA-256 digest of the canonical
// JSON encoding of raw, a json.RawMessage of arbitrary input. Two inputs
// that are JSON-equal always hash identically regardless of key order or
// whitespace (Testable Property 6).
func CanonicalHash(raw json.RawMessage) (string, error) {
	var v any
	if len(raw) == 0 {
		v = nil
	} else if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("canonical hash: decode input: %w", err)
	}
	canon, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return x, nil
	}
}

// marshalCanonical writes v as JSON with map keys sorted lexically. Go's
// encoding/json already sorts map[string]any keys and renders float64 in
// shortest round-trip form, so this is mostly direct encoding; the explicit
// walk below exists to guarantee key order for nested maps even if that
// default ever changes, to render integral floats (including -0) as plain
// integers, and to reject NaN/Inf with a descriptive error.
func marshalCanonical(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if x {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case string:
		return json.Marshal(x)
	case float64:
		return marshalNumber(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := marshalCanonical(x[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []any:
		buf := []byte{'['}
		for i, e := range x {
			if i > 0 {
				buf = append(buf, ',')
			}
			eb, err := marshalCanonical(e)
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(x)
	}
}

func marshalNumber(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("canonical hash: non-finite number %v is not representable in JSON", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return []byte(fmt.Sprintf("%d", int64(f))), nil
	}
	return json.Marshal(f)
}
