package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func newReg(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	Register(r)
	return r
}

func TestEnrichMergesEntries(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("metadata.enrich", map[string]any{"entries": map[string]any{"source": "test"}})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "test", out[0].Metadata["source"])
}

func TestEnrichRequiresNonEmptyEntries(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("metadata.enrich", map[string]any{})
	assert.Error(t, err)
}

func TestRemoveClearsMetadataWhenEmpty(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("metadata.remove", map[string]any{"keys": []any{"a"}})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: "x", Metadata: record.Metadata{"a": 1}}})
	require.NoError(t, err)
	assert.Nil(t, out[0].Metadata)
}

func TestKeepRetainsOnlyNamedKeys(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("metadata.keep", map[string]any{"keys": []any{"a"}})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: "x", Metadata: record.Metadata{"a": 1, "b": 2}}})
	require.NoError(t, err)
	assert.Equal(t, record.Metadata{"a": 1}, out[0].Metadata)
}

func TestRenameMapsMetadataKeys(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("metadata.rename", map[string]any{"mapping": map[string]any{"a": "z"}})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: "x", Metadata: record.Metadata{"a": 1}}})
	require.NoError(t, err)
	assert.Equal(t, record.Metadata{"z": 1}, out[0].Metadata)
}

func TestCopyCopiesValueFromPayloadToMetadata(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("metadata.copy", map[string]any{"source": "payload.id", "target": "metadata.id"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: map[string]any{"id": "abc"}}})
	require.NoError(t, err)
	assert.Equal(t, "abc", out[0].Metadata["id"])
}

func TestRequireErrorsOnMissingKey(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("metadata.require", map[string]any{"keys": []any{"must_have"}})
	require.NoError(t, err)

	_, err = registry.ApplyNamed(op, record.Batch{{Payload: "x"}})
	assert.Error(t, err)
}

func TestExtractCapturesRegexGroup(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("metadata.extract", map[string]any{
		"path":    "payload.text",
		"key":     "year",
		"pattern": `(\d{4})`,
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: map[string]any{"text": "published in 2021 edition"}}})
	require.NoError(t, err)
	assert.Equal(t, "2021", out[0].Metadata["year"])
}

func TestExtractOptionalSkipsMissingPath(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("metadata.extract", map[string]any{
		"path":     "payload.missing",
		"key":      "year",
		"optional": true,
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: map[string]any{}}})
	require.NoError(t, err)
	assert.Nil(t, out[0].Metadata)
}

func TestExtractRequiresPathAndKey(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("metadata.extract", map[string]any{"path": "payload.text"})
	assert.Error(t, err)
}
