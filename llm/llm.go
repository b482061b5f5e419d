package llm

import (
	"context"
	"net/http"
	"strings"
)

// StructuredRequest asks a model for one JSON object conforming to Schema.
type StructuredRequest struct {
	System     string
	Prompt     string
	SchemaName string
	Schema     map[string]any
}

// StructuredClient returns exactly one JSON object string per request, or an error.
// Implementations must be concurrency-safe.
type StructuredClient interface {
	CompleteJSON(ctx context.Context, req StructuredRequest) (string, error)
	// SourceName returns a short provider label for logs and audit records (e.g., "ChatGPT", "Gemini").
	SourceName() string
}

// VisionClient describes a single image in free text.
// Implementations must be concurrency-safe and must not modify imageData.
type VisionClient interface {
	DescribeImage(ctx context.Context, imageData []byte, instruction string) (string, error)
}

// Client is a provider that offers both capabilities.
type Client interface {
	StructuredClient
	VisionClient
}

// DetectMimeType guesses the mime type of image bytes for inline uploads,
// falling back to image/jpeg.
func DetectMimeType(data []byte) string {
	if mt := http.DetectContentType(data); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/jpeg"
}
