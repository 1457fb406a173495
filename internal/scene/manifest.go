package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/maauso/clipgen-api/internal/storage"
)

// Asset records the files generated for one scene.
type Asset struct {
	Index       int    `json:"index"`
	SceneID     string `json:"scene_id"`
	ImagePrompt string `json:"image_prompt"`
	Text        string `json:"text"`
	ImagePath   string `json:"image_path"`
	AudioPath   string `json:"audio_path"`
}

// Manifest lists every scene of a task with its resolved asset paths,
// in scene order. The compositor pairs images and audio from it.
type Manifest struct {
	TaskID string  `json:"task_id"`
	Scenes []Asset `json:"scenes"`
}

// NewAsset builds the manifest entry for s.
func NewAsset(s Scene, imagePath, audioPath string) Asset {
	return Asset{
		Index:       s.Index,
		SceneID:     s.ID(),
		ImagePrompt: s.ImagePrompt,
		Text:        s.Text,
		ImagePath:   imagePath,
		AudioPath:   audioPath,
	}
}

// WriteManifest stores m at path.
func WriteManifest(ctx context.Context, path string, m Manifest) error {
	if err := storage.WriteJSON(ctx, path, m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest at path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
