package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewS3Publisher(t *testing.T) {
	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	publisher, err := NewS3Publisher(cfg)
	if err != nil {
		t.Fatalf("NewS3Publisher() error = %v", err)
	}

	if publisher.bucket != cfg.Bucket {
		t.Errorf("bucket = %v, want %v", publisher.bucket, cfg.Bucket)
	}
	if publisher.region != cfg.Region {
		t.Errorf("region = %v, want %v", publisher.region, cfg.Region)
	}
}

func TestNewS3Publisher_NotConfigured(t *testing.T) {
	_, err := NewS3Publisher(S3Config{Bucket: "only-bucket"})
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}

func TestS3Publisher_Publish_MockServer(t *testing.T) {
	// Create a mock S3 server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}

		if !strings.Contains(r.URL.Path, "/videos/task-1.mp4") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if string(body) != "test content" {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Prefix:          "videos",
	}

	publisher, err := NewS3Publisher(cfg)
	if err != nil {
		t.Fatalf("NewS3Publisher() error = %v", err)
	}

	url, err := publisher.Publish(context.Background(), "task-1.mp4", bytes.NewReader([]byte("test content")))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	expectedURL := server.URL + "/test-bucket/videos/task-1.mp4"
	if url != expectedURL {
		t.Errorf("url = %v, want %v", url, expectedURL)
	}
}
