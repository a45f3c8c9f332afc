package namenorm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lionmetrics/zonescope/internal/model"
)

func writeFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0o644)
}

func TestNormalize_Variants(t *testing.T) {
	for _, raw := range []string{"Tampines   East", "tampines east", "  Tampines  East  "} {
		got, ok := Normalize(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, "TAMPINES EAST", got, raw)
	}
}

func TestNormalize_Punctuation(t *testing.T) {
	got, ok := Normalize("Tampines' East-Central/North")
	assert.True(t, ok)
	assert.Equal(t, "TAMPINES EAST CENTRAL NORTH", got)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Tampines' East-Central/North",
		"  Ang Mo   Kio ",
		"Bedok North Subzone",
		"Sengkang - Total",
	}
	for _, raw := range inputs {
		once, ok := Normalize(raw)
		require.True(t, ok, raw)
		twice, ok := Normalize(once)
		require.True(t, ok, raw)
		assert.Equal(t, once, twice, raw)
	}
}

func TestNormalize_StripsSubzoneToken(t *testing.T) {
	got, ok := Normalize("Bedok North Subzone")
	assert.True(t, ok)
	assert.Equal(t, "BEDOK NORTH", got)
}

func TestNormalize_StripsTotalSuffix(t *testing.T) {
	got, ok := Normalize("Sengkang - Total")
	assert.True(t, ok)
	assert.Equal(t, "SENGKANG", got)
}

func TestNormalize_RejectsAggregates(t *testing.T) {
	for _, raw := range []string{"", "   ", "Number", "TOTAL", "total"} {
		_, ok := Normalize(raw)
		assert.False(t, ok, raw)
	}
}

func TestNormalize_StripsDiacritics(t *testing.T) {
	got, ok := Normalize("Sentosa Cové")
	assert.True(t, ok)
	assert.Equal(t, "SENTOSA COVE", got)
}

func testZones() []model.Zone {
	return []model.Zone{
		{ID: "SZ-001", Name: "Tampines East"},
		{ID: "SZ-002", Name: "Ang Mo Kio Town Centre"},
	}
}

func TestResolver_AliasBeatsDirect(t *testing.T) {
	r := NewResolver(map[string]string{"Tampines East": "SZ-ALIAS"}, testZones())
	m, _, ok := r.Resolve("TAMPINES EAST")
	require.True(t, ok)
	assert.Equal(t, "SZ-ALIAS", m.ZoneID)
	assert.Equal(t, ConfidenceAlias, m.Confidence)
}

func TestResolver_NormalizesAliasKeys(t *testing.T) {
	// Raw casing, punctuation, and hyphens in alias keys resolve the same
	// as keys pre-normalized by LoadAliases or WithOverlay.
	r := NewResolver(map[string]string{"Tampines-East's": "SZ-ALIAS"}, testZones())
	m, _, ok := r.Resolve("TAMPINES EASTS")
	require.True(t, ok)
	assert.Equal(t, "SZ-ALIAS", m.ZoneID)
	assert.Equal(t, ConfidenceAlias, m.Confidence)

	// A key that normalizes to nothing is dropped, not stored verbatim.
	r = NewResolver(map[string]string{"Total": "SZ-BAD"}, testZones())
	_, _, ok = r.Resolve("Total")
	assert.False(t, ok)
}

func TestResolver_DirectMatch(t *testing.T) {
	r := NewResolver(nil, testZones())
	m, _, ok := r.Resolve("ANG MO KIO TOWN CENTRE")
	require.True(t, ok)
	assert.Equal(t, "SZ-002", m.ZoneID)
	assert.Equal(t, ConfidenceDirect, m.Confidence)
}

func TestResolver_NoMatchDiagnostic(t *testing.T) {
	r := NewResolver(nil, testZones())
	_, diag, ok := r.Resolve("NOWHERE")
	assert.False(t, ok)
	assert.Equal(t, "No match for normalized name: 'NOWHERE'", diag)
}

func TestResolver_OverlayDoesNotMutateBase(t *testing.T) {
	base := NewResolver(nil, testZones())
	over := base.WithOverlay(map[string]string{"AMK Central": "SZ-002"})

	m, _, ok := over.Resolve("AMK CENTRAL")
	require.True(t, ok)
	assert.Equal(t, "SZ-002", m.ZoneID)

	_, _, ok = base.Resolve("AMK CENTRAL")
	assert.False(t, ok, "overlay must not leak into the base resolver")
}

func TestLoadAliases_File(t *testing.T) {
	path := t.TempDir() + "/aliases.yaml"
	data := "aliases:\n  \"AMK Central\": SZ-002\n  \"Tampines' East\": SZ-001\n"
	require.NoError(t, writeFile(path, data))

	aliases, err := LoadAliases(path)
	require.NoError(t, err)
	assert.Equal(t, "SZ-002", aliases["AMK CENTRAL"])
	assert.Equal(t, "SZ-001", aliases["TAMPINES EAST"])
}
