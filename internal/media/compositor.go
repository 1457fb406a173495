// Package media composes the final video from per-scene images and narration.
package media

import (
	"context"
	"errors"
	"os"

	"github.com/maauso/clipgen-api/internal/scene"
)

// ErrNoValidClips is returned when no scene has both its image and its audio file.
var ErrNoValidClips = errors.New("no valid clips")

// Compositor turns scene assets into one concatenated video at output.
// Scenes missing an image or audio file are skipped; if none remain,
// Compose returns ErrNoValidClips and writes nothing.
type Compositor interface {
	Compose(ctx context.Context, assets []scene.Asset, output string) error
}

// Pair is a scene whose image and audio both exist on disk.
type Pair struct {
	SceneID   string
	ImagePath string
	AudioPath string
}

// Skip explains why a scene was left out of the video.
type Skip struct {
	SceneID string
	Reason  string
}

// SelectPairs keeps, in manifest order, the scenes whose image and audio files exist.
func SelectPairs(assets []scene.Asset) ([]Pair, []Skip) {
	var pairs []Pair
	var skipped []Skip
	for _, a := range assets {
		switch {
		case !isFile(a.ImagePath):
			skipped = append(skipped, Skip{SceneID: a.SceneID, Reason: "image missing"})
		case !isFile(a.AudioPath):
			skipped = append(skipped, Skip{SceneID: a.SceneID, Reason: "audio missing"})
		default:
			pairs = append(pairs, Pair{SceneID: a.SceneID, ImagePath: a.ImagePath, AudioPath: a.AudioPath})
		}
	}
	return pairs, skipped
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
