// Package scene turns language model output into an ordered list of scenes
// and records the assets generated for each of them.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrMalformedScenes is returned when the generator output is not the expected JSON shape.
	ErrMalformedScenes = errors.New("malformed scene list")
	// ErrNoScenes is returned when the generator output holds zero scenes.
	ErrNoScenes = errors.New("no scenes generated")
)

// Scene is one image prompt and narration pair, identified by its position.
type Scene struct {
	Index       int    `json:"index"`
	ImagePrompt string `json:"image_prompt"`
	Text        string `json:"text"`
}

// ID returns the asset base name for the scene, e.g. "scene0".
func (s Scene) ID() string {
	return SceneID(s.Index)
}

// SceneID returns the asset base name for a zero-based scene index.
func SceneID(index int) string {
	return fmt.Sprintf("scene%d", index)
}

var (
	fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	thinkBlock  = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

type sceneList struct {
	Scenes []struct {
		ImagePrompt string `json:"image_prompt"`
		Text        string `json:"text"`
	} `json:"scenes"`
}

// Parse extracts the scene list from raw generator output.
// The JSON document is taken from a fenced code block when one is present,
// otherwise from the outermost brace-delimited span. At most limit scenes
// are returned; limit <= 0 means no limit.
func Parse(raw string, limit int) ([]Scene, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var list sceneList
	if err := json.Unmarshal([]byte(doc), &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScenes, err)
	}
	if len(list.Scenes) == 0 {
		return nil, ErrNoScenes
	}
	if limit > 0 && len(list.Scenes) > limit {
		list.Scenes = list.Scenes[:limit]
	}

	scenes := make([]Scene, 0, len(list.Scenes))
	for i, s := range list.Scenes {
		prompt := strings.TrimSpace(s.ImagePrompt)
		text := strings.TrimSpace(s.Text)
		if prompt == "" {
			return nil, fmt.Errorf("%w: scene %d has an empty image_prompt", ErrMalformedScenes, i)
		}
		if text == "" {
			return nil, fmt.Errorf("%w: scene %d has an empty text", ErrMalformedScenes, i)
		}
		scenes = append(scenes, Scene{Index: i, ImagePrompt: prompt, Text: text})
	}
	return scenes, nil
}

func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(thinkBlock.ReplaceAllString(raw, ""))
	if s == "" {
		return "", fmt.Errorf("%w: empty response", ErrMalformedScenes)
	}

	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrMalformedScenes)
	}
	return s[start : end+1], nil
}
