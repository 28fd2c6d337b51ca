package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weave-logic-ai/weft/pkg/models"
)

func writeSkillMD(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SkillFilename), []byte(content), 0o644))
}

func TestParseDirSkillMD(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "---\nname: web-search\ndescription: searches the web\nrequires_env:\n  - SEARCH_API_KEY\n---\nUse this skill to search.\n")

	entry, err := ParseDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "web-search", entry.Name)
	assert.Equal(t, "searches the web", entry.Description)
	assert.Equal(t, []string{"SEARCH_API_KEY"}, entry.RequiresEnv)

	body, err := PromptBody(entry)
	require.NoError(t, err)
	assert.Equal(t, "Use this skill to search.", body)
}

func TestParseDirLegacy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyManifest), []byte(`{"name":"legacy-skill","description":"an old one"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyPrompt), []byte("do the old thing"), 0o644))

	entry, err := ParseDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "legacy-skill", entry.Name)

	body, err := PromptBody(entry)
	require.NoError(t, err)
	assert.Equal(t, "do the old thing", body)
}

func TestParseDirInvalidName(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "---\nname: Bad Name!\ndescription: x\n---\nbody\n")
	_, err := ParseDir(dir)
	require.Error(t, err)
}

func TestParseDirMissingDescription(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "---\nname: ok-name\n---\nbody\n")
	_, err := ParseDir(dir)
	require.Error(t, err)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeSkillMD(t, filepath.Join(root, "alpha"), "---\nname: alpha\ndescription: first\n---\nbody\n")
	writeSkillMD(t, filepath.Join(root, "beta"), "---\nname: beta\ndescription: second\n---\nbody\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0o755))

	found, errs := Discover(root)
	require.Len(t, found, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, "alpha", found[0].Name)
	assert.Equal(t, "beta", found[1].Name)
}

func TestDiscoverMissingRoot(t *testing.T) {
	found, errs := Discover(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Nil(t, found)
	assert.Nil(t, errs)
}

func TestGate(t *testing.T) {
	env := func(key string) (string, bool) {
		if key == "SET_VAR" {
			return "1", true
		}
		return "", false
	}

	assert.True(t, Gate(models.Skill{Always: true}, env))
	assert.True(t, Gate(models.Skill{RequiresEnv: []string{"SET_VAR"}}, env))
	assert.False(t, Gate(models.Skill{RequiresEnv: []string{"MISSING_VAR"}}, env))
}
