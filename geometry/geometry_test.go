package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_NotEmpty(t *testing.T) {
	presets := Catalog()
	require.NotEmpty(t, presets)
	for _, p := range presets {
		assert.NotEmpty(t, p.Name)
		assert.Greater(t, p.TotalBlocks, uint32(1))
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	p, err := Lookup("SMALL10M")
	require.NoError(t, err)
	assert.Equal(t, uint32(2560), p.TotalBlocks)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("doesnotexist")
	assert.Error(t, err)
}

func TestCatalog_IsACopy(t *testing.T) {
	presets := Catalog()
	presets[0].Name = "mutated"

	again := Catalog()
	assert.NotEqual(t, "mutated", again[0].Name)
}
