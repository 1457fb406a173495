// Package prompt holds the language model prompts as a YAML catalog.
// A default catalog is embedded; a file on disk can replace it.
package prompt

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// ErrMissingTemplate is returned when the catalog lacks the scene generation user prompt.
var ErrMissingTemplate = errors.New("prompt catalog: scene_generation.user is empty")

// SceneData is the data the scene generation templates are rendered with.
type SceneData struct {
	Topic     string
	NumScenes int
}

// Message is a rendered system/user prompt pair.
type Message struct {
	System string
	User   string
}

type catalogFile struct {
	SceneGeneration struct {
		System string `yaml:"system"`
		User   string `yaml:"user"`
	} `yaml:"scene_generation"`
}

// Catalog is a parsed prompt catalog.
type Catalog struct {
	system *template.Template
	user   *template.Template
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and compiles its templates.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode prompt catalog: %w", err)
	}
	if strings.TrimSpace(f.SceneGeneration.User) == "" {
		return nil, ErrMissingTemplate
	}

	system, err := template.New("system").Option("missingkey=error").Parse(f.SceneGeneration.System)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	user, err := template.New("user").Option("missingkey=error").Parse(f.SceneGeneration.User)
	if err != nil {
		return nil, fmt.Errorf("parse user prompt: %w", err)
	}
	return &Catalog{system: system, user: user}, nil
}

// SceneGeneration renders the scene generation prompt.
func (c *Catalog) SceneGeneration(data SceneData) (Message, error) {
	var sys, usr bytes.Buffer
	if err := c.system.Execute(&sys, data); err != nil {
		return Message{}, fmt.Errorf("render system prompt: %w", err)
	}
	if err := c.user.Execute(&usr, data); err != nil {
		return Message{}, fmt.Errorf("render user prompt: %w", err)
	}
	return Message{
		System: strings.TrimSpace(sys.String()),
		User:   strings.TrimSpace(usr.String()),
	}, nil
}
