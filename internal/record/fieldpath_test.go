package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPathRejectsBareMetadata(t *testing.T) {
	_, err := ParseFieldPath("metadata")
	assert.Error(t, err)
}

func TestFieldPathNestedPayloadRoundTrips(t *testing.T) {
	path, err := ParseFieldPath("payload.a.b")
	require.NoError(t, err)

	r := Record{Payload: map[string]any{}}
	ok := path.SetValue(&r, "value")
	require.True(t, ok)

	got, ok := path.Resolve(r)
	require.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestFieldPathBarePayloadRoundTrips(t *testing.T) {
	path, err := ParseFieldPath("payload")
	require.NoError(t, err)

	r := Record{Payload: map[string]any{"existing": "data"}}

	got, ok := path.Resolve(r)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"existing": "data"}, got)

	ok = path.SetValue(&r, map[string]any{"replaced": true})
	require.True(t, ok)

	got, ok = path.Resolve(r)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"replaced": true}, got)
}

func TestFieldPathMetadataRoundTrips(t *testing.T) {
	path, err := ParseFieldPath("metadata.dedup_info")
	require.NoError(t, err)

	r := Record{}
	ok := path.SetValue(&r, map[string]any{"duplicate": true})
	require.True(t, ok)

	got, ok := path.Resolve(r)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"duplicate": true}, got)
}
