// Package together provides a client for the Together AI image generation API.
// It is the image generator of the pipeline: one prompt in, one PNG on disk out.
package together

// Defaults for image generation requests.
const (
	DefaultBaseURL = "https://api.together.xyz/v1"
	DefaultModel   = "black-forest-labs/FLUX.1-schnell-Free"
	DefaultSteps   = 3
	DefaultSize    = 1024
	DefaultSeed    = 131346467979
)

// ImageOptions contains optional generation parameters.
type ImageOptions struct {
	Width  int   // Image width in pixels (default: 1024)
	Height int   // Image height in pixels (default: 1024)
	Steps  int   // Diffusion steps (default: 3)
	Seed   int64 // Sampling seed (default: 131346467979)
}

// DefaultImageOptions returns the options used when none are configured.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		Width:  DefaultSize,
		Height: DefaultSize,
		Steps:  DefaultSteps,
		Seed:   DefaultSeed,
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Steps  int    `json:"steps"`
	N      int    `json:"n"`
	Seed   int64  `json:"seed"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
