package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"incident-dispatch/llm"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content any    `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

// Client represents an OpenAI API client
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	visionModel string
	client      *http.Client
}

// NewClient creates a new OpenAI client. model serves structured classification,
// visionModel serves image descriptions.
func NewClient(apiKey, baseURL, model, visionModel string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		visionModel: visionModel,
		client:      &http.Client{},
	}
}

// SourceName identifies this provider in logs and audit records
func (c *Client) SourceName() string {
	return "ChatGPT"
}

// encodeImageToDataURL converts image bytes to a base64 data URL
func encodeImageToDataURL(imageData []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", llm.DetectMimeType(imageData), base64.StdEncoding.EncodeToString(imageData))
}

// CompleteJSON sends a prompt constrained by a strict json_schema response format
func (c *Client) CompleteJSON(ctx context.Context, req llm.StructuredRequest) (string, error) {
	messages := []Message{}
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt})

	reqBody := ChatRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &ResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   req.SchemaName,
				Strict: true,
				Schema: req.Schema,
			},
		},
	}

	return c.chat(ctx, reqBody)
}

// DescribeImage asks the vision model for a short description of one image
func (c *Client) DescribeImage(ctx context.Context, imageData []byte, instruction string) (string, error) {
	reqBody := ChatRequest{
		Model: c.visionModel,
		Messages: []Message{
			{
				Role: "user",
				Content: []any{
					TextContent{Type: "text", Text: instruction},
					ImageContent{
						Type: "image_url",
						ImageURL: ImageURL{
							URL:    encodeImageToDataURL(imageData),
							Detail: "low",
						},
					},
				},
			},
		},
	}

	text, err := c.chat(ctx, reqBody)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) chat(ctx context.Context, reqBody ChatRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	msg := chatResp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", msg.Refusal)
	}

	if contentStr, ok := msg.Content.(string); ok {
		return contentStr, nil
	}
	if msg.Content == nil {
		return "", fmt.Errorf("empty content in response")
	}

	// If content is not a string, try to marshal it back to JSON
	contentJSON, err := json.Marshal(msg.Content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal content: %w", err)
	}

	return string(contentJSON), nil
}
