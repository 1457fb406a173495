package scene

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipgen-api/internal/prompt"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

func TestLLMGenerator_Generate(t *testing.T) {
	catalog, err := prompt.Default()
	require.NoError(t, err)

	client := new(mockCompleter)
	client.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(user string) bool {
		return strings.Contains(user, "Topic: rivers") && strings.Contains(user, "Number of Scenes: 3")
	})).Return("```json\n{}\n```", nil)

	raw, err := NewLLMGenerator(client, catalog).Generate(context.Background(), "rivers", 3)

	require.NoError(t, err)
	assert.Equal(t, "```json\n{}\n```", raw)
	client.AssertExpectations(t)
}

func TestLLMGenerator_ClientError(t *testing.T) {
	catalog, _ := prompt.Default()
	client := new(mockCompleter)
	upstream := errors.New("rate limited")
	client.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", upstream)

	_, err := NewLLMGenerator(client, catalog).Generate(context.Background(), "rivers", 3)

	assert.ErrorIs(t, err, upstream)
}
