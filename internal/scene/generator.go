package scene

import (
	"context"
	"fmt"

	"github.com/maauso/clipgen-api/internal/prompt"
)

// Completer sends one chat completion request and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLMGenerator asks a language model for a scene list.
type LLMGenerator struct {
	client  Completer
	prompts *prompt.Catalog
}

// NewLLMGenerator creates a scene generator backed by client.
func NewLLMGenerator(client Completer, prompts *prompt.Catalog) *LLMGenerator {
	return &LLMGenerator{client: client, prompts: prompts}
}

// Generate returns the raw model reply for topic and count.
// The reply is not validated; use Parse on it.
func (g *LLMGenerator) Generate(ctx context.Context, topic string, count int) (string, error) {
	msg, err := g.prompts.SceneGeneration(prompt.SceneData{Topic: topic, NumScenes: count})
	if err != nil {
		return "", err
	}
	reply, err := g.client.Complete(ctx, msg.System, msg.User)
	if err != nil {
		return "", fmt.Errorf("generate scenes: %w", err)
	}
	return reply, nil
}
