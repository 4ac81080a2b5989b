package generator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
)

func TestExtractItems(t *testing.T) {
	raw := "Sure! Here is your data:\n```json\n[{\"age\": 25}, 7, {\"age\": 30}, null]\n```\nEnjoy [really]"
	// The last ']' belongs to the trailing prose, which makes the slice invalid.
	_, err := ExtractItems(raw)
	assert.True(t, errors.Is(err, contracts.ErrMalformedGeneratorOutput))

	items, err := ExtractItems("```json\n[{\"age\": 25}, 7, {\"age\": 30}, null]\n```")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 25.0, items[0]["age"])
	assert.Equal(t, 30.0, items[1]["age"])
}

func TestExtractItemsMalformed(t *testing.T) {
	for _, raw := range []string{"", "no json here", "] backwards [", "[{\"a\": }]"} {
		_, err := ExtractItems(raw)
		assert.True(t, errors.Is(err, contracts.ErrMalformedGeneratorOutput), "ExtractItems(%q) error = %v", raw, err)
	}
}

func TestExtractItemsEmptyArray(t *testing.T) {
	items, err := ExtractItems("[]")
	require.NoError(t, err)
	assert.Empty(t, items)
}
