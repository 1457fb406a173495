// Package server provides the HTTP surface for the clip generation API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "github.com/maauso/clipgen-api/internal/dispatch"

// GenerateClipRequest is the HTTP request body for submitting a topic.
type GenerateClipRequest struct {
	// Topic is the subject the narrated scenes are written about.
	Topic string `json:"topic" validate:"required,max=500"`
	// NumScenes is the number of scenes to generate.
	NumScenes int `json:"num_scenes" validate:"required,min=1,max=6"`
}

// GenerateClipResponse is the HTTP response after accepting a submission.
type GenerateClipResponse struct {
	TaskID string `json:"task_id"`
}

// ProgressResponse is the HTTP response for polling a task.
type ProgressResponse struct {
	// State is one of PENDING, PROGRESS, SUCCESS or FAILURE.
	State string `json:"state"`
	// Status is the human-readable stage, "Error: <message>" on failure.
	Status string `json:"status"`
	// Stage is the lifecycle stage without any error message.
	Stage string `json:"stage,omitempty"`
	// ErrorKind classifies a failure for programmatic handling.
	ErrorKind   string `json:"error_kind,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	// VideoURL is the published copy of the video, when publishing is enabled.
	VideoURL string `json:"video_url,omitempty"`
}

// CleanupResponse is the HTTP response for an on-demand retention sweep.
type CleanupResponse struct {
	Message   string `json:"message"`
	Reclaimed int    `json:"reclaimed"`
}

// DeleteTaskResponse is the HTTP response for removing a task workspace.
type DeleteTaskResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// MemoryResponse reports process memory usage and dispatcher load.
type MemoryResponse struct {
	AllocBytes      uint64         `json:"alloc_bytes"`
	TotalAllocBytes uint64         `json:"total_alloc_bytes"`
	SysBytes        uint64         `json:"sys_bytes"`
	HeapObjects     uint64         `json:"heap_objects"`
	NumGC           uint32         `json:"num_gc"`
	Goroutines      int            `json:"goroutines"`
	Dispatcher      dispatch.Stats `json:"dispatcher"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
