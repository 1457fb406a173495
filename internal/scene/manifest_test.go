package scene

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_WriteRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	s := Scene{Index: 1, ImagePrompt: "a lighthouse", Text: "Waves crash."}
	m := Manifest{
		TaskID: "task-1",
		Scenes: []Asset{NewAsset(s, filepath.Join(dir, "images", "scene1.png"), filepath.Join(dir, "Audio", "scene1.mp3"))},
	}

	require.NoError(t, WriteManifest(context.Background(), path, m))

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, "scene1", got.Scenes[0].SceneID)
}

func TestReadManifest_Missing(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "manifest.json"))
	assert.Error(t, err)
}
