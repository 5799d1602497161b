package ids

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalHash_KeyOrderIndependent(t *testing.T) {
	a, err := CanonicalHash(json.RawMessage(`{"b":1,"a":2}`))
	require.NoError(t, err)
	b, err := CanonicalHash(json.RawMessage(`{"a":2,"b":1}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalHash_WhitespaceIndependent(t *testing.T) {
	a, err := CanonicalHash(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	b, err := CanonicalHash(json.RawMessage(`{  "a" : 1  }`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalHash_DifferentValuesDiffer(t *testing.T) {
	a, err := CanonicalHash(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	b, err := CanonicalHash(json.RawMessage(`{"a":2}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCanonicalHash_EmptyInputIsNull(t *testing.T) {
	empty, err := CanonicalHash(nil)
	require.NoError(t, err)
	null, err := CanonicalHash(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, null, empty)
}

func TestCanonicalHash_IntegerFloatNormalisation(t *testing.T) {
	a, err := CanonicalHash(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	b, err := CanonicalHash(json.RawMessage(`{"a":1.0}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalHash_RejectsInvalidJSON(t *testing.T) {
	_, err := CanonicalHash(json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestCanonicalJSON_NestedArraysAndObjectsSortKeys(t *testing.T) {
	var v any
	require.NoError(t, json.Unmarshal([]byte(`{"z":[{"y":1,"x":2}],"a":true}`), &v))

	out, err := CanonicalJSON(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":true,"z":[{"x":2,"y":1}]}`, string(out))
}
