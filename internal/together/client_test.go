package together

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakePNG = []byte("\x89PNG\r\n\x1a\nfake")

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestWithImageOptions_KeepsDefaultsForZeroFields(t *testing.T) {
	c, err := NewClient("k", WithImageOptions(ImageOptions{Width: 512}))
	require.NoError(t, err)
	assert.Equal(t, 512, c.opts.Width)
	assert.Equal(t, DefaultSize, c.opts.Height)
	assert.Equal(t, DefaultSteps, c.opts.Steps)
	assert.Equal(t, int64(DefaultSeed), c.opts.Seed)
}

func TestClient_GenerateImage_URL(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req imageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a quiet harbor", req.Prompt)
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, 1, req.N)
		assert.Equal(t, 3, req.Steps)
		assert.Equal(t, 1024, req.Width)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": server.URL + "/files/img.png"}},
		})
	})
	mux.HandleFunc("/files/img.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(fakePNG)
	})

	c, err := NewClient("test-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := c.GenerateImage(context.Background(), "a quiet harbor", "scene0", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scene0.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fakePNG, data)
}

func TestClient_GenerateImage_Base64(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(fakePNG)}},
		})
	}))
	defer server.Close()

	c, _ := NewClient("k", WithBaseURL(server.URL))
	path, err := c.GenerateImage(context.Background(), "p", "scene2", t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fakePNG, data)
}

func TestClient_GenerateImage_Errors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"message":"NSFW"}}`))
		}))
		defer server.Close()

		c, _ := NewClient("k", WithBaseURL(server.URL))
		_, err := c.GenerateImage(context.Background(), "p", "scene0", t.TempDir())
		assert.ErrorIs(t, err, ErrRequestFailed)
	})

	t.Run("empty data", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer server.Close()

		c, _ := NewClient("k", WithBaseURL(server.URL))
		_, err := c.GenerateImage(context.Background(), "p", "scene0", t.TempDir())
		assert.ErrorIs(t, err, ErrNoImage)
	})

	t.Run("download fails", func(t *testing.T) {
		mux := http.NewServeMux()
		server := httptest.NewServer(mux)
		defer server.Close()
		mux.HandleFunc("/images/generations", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]string{{"url": server.URL + "/missing.png"}},
			})
		})

		dir := t.TempDir()
		c, _ := NewClient("k", WithBaseURL(server.URL))
		_, err := c.GenerateImage(context.Background(), "p", "scene0", dir)
		assert.ErrorIs(t, err, ErrDownloadFailed)
		assert.NoFileExists(t, filepath.Join(dir, "scene0.png"))
	})
}
