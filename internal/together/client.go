package together

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/clipgen-api/internal/storage"
)

// Static errors for image generation operations.
var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("together: API key is required")
	// ErrRequestFailed is returned when the API answers with a non-2xx status or an error body.
	ErrRequestFailed = errors.New("together: request failed")
	// ErrNoImage is returned when the response carries neither a URL nor inline data.
	ErrNoImage = errors.New("together: response contains no image")
	// ErrDownloadFailed is returned when the generated image URL cannot be fetched.
	ErrDownloadFailed = errors.New("together: image download failed")
)

// Client is an HTTP image generation client. Calls are single-shot.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	opts       ImageOptions
	httpClient *http.Client
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom API root.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel sets the image model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithImageOptions overrides the generation parameters. Zero fields keep their defaults.
func WithImageOptions(o ImageOptions) ClientOption {
	return func(c *Client) {
		if o.Width > 0 {
			c.opts.Width = o.Width
		}
		if o.Height > 0 {
			c.opts.Height = o.Height
		}
		if o.Steps > 0 {
			c.opts.Steps = o.Steps
		}
		if o.Seed != 0 {
			c.opts.Seed = o.Seed
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an image generation client.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		opts:       DefaultImageOptions(),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateImage renders prompt and writes the image to <outputDir>/<sceneID>.png.
// It returns the written path.
func (c *Client) GenerateImage(ctx context.Context, prompt, sceneID, outputDir string) (string, error) {
	body, err := json.Marshal(imageRequest{
		Model:  c.model,
		Prompt: prompt,
		Width:  c.opts.Width,
		Height: c.opts.Height,
		Steps:  c.opts.Steps,
		N:      1,
		Seed:   c.opts.Seed,
	})
	if err != nil {
		return "", fmt.Errorf("together: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("together: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("together: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("together: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	var out imageResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("together: unmarshal response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrRequestFailed, out.Error.Message)
	}
	if len(out.Data) == 0 {
		return "", ErrNoImage
	}

	path := filepath.Join(outputDir, sceneID+".png")
	item := out.Data[0]
	switch {
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return "", fmt.Errorf("together: decode image: %w", err)
		}
		if err := storage.WriteFile(ctx, path, bytes.NewReader(data)); err != nil {
			return "", fmt.Errorf("together: save image: %w", err)
		}
	case item.URL != "":
		if err := c.download(ctx, item.URL, path); err != nil {
			return "", err
		}
	default:
		return "", ErrNoImage
	}
	return path, nil
}

func (c *Client) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("together: create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}
	if err := storage.WriteFile(ctx, path, resp.Body); err != nil {
		return fmt.Errorf("together: save image: %w", err)
	}
	return nil
}
