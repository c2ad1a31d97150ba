package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMessages(t *testing.T) {
	c := MustDefault()
	assert.Equal(t, "It is not your turn.", c.ErrorMessage("not_your_turn", nil, ""))
	assert.Equal(t, "You already have a game in progress (g1).",
		c.ErrorMessage("has_active_game", map[string]any{"GameID": "g1"}, ""))
	assert.Equal(t, "Something went wrong. Please try again.", c.ErrorMessage("no_such_code", nil, ""))
	assert.Equal(t, "fallback", c.ErrorMessage("no_such_code", nil, "fallback"))
}

func TestMissingTemplateFieldIsError(t *testing.T) {
	c := MustDefault()
	_, err := c.Render("errors.has_active_game", map[string]any{})
	assert.Error(t, err)
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("errors:\n  column_full: \"Full!\"\n"), 0o644))
	c, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "Full!", c.ErrorMessage("column_full", nil, ""))
	assert.Equal(t, "That column is full.", MustDefault().ErrorMessage("column_full", nil, ""))
}

func TestOverrideDirRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	body := []byte("errors:\n  column_full: \"x\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), body, 0o644))
	_, err := New(dir)
	assert.ErrorContains(t, err, "duplicate override key")
}

func TestNonStringLeafRejected(t *testing.T) {
	_, err := parseYAMLToFlat([]byte("errors:\n  n: 3\n"))
	assert.Error(t, err)
}
