package generator

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIDsSortNumerically(t *testing.T) {
	g := NewTokenGenerator("nft", 120)

	ids := []string{g.TokenID(100), g.TokenID(9), g.TokenID(11)}
	sort.Strings(ids)

	assert.Equal(t, []string{"nft-009", "nft-011", "nft-100"}, ids)
}

func TestGenerateMints(t *testing.T) {
	g := NewTokenGenerator("nft", 3)

	mints := g.GenerateMints(3)
	require.Len(t, mints, 3)

	for i, mint := range mints {
		assert.Equal(t, g.TokenID(i+1), mint.TokenID)
		assert.Empty(t, mint.Owner, "minted to the crowdfund itself")
		assert.NotEmpty(t, mint.TokenURI)

		var ext map[string]string
		require.NoError(t, json.Unmarshal(mint.Extension, &ext))
		assert.NotEmpty(t, ext["name"])
	}
}

func TestRunID(t *testing.T) {
	assert.Len(t, RunID(), 10)
	assert.NotEqual(t, RunID(), RunID())
}
