package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// LLMService defines the interface for chat completion operations.
// Implementations wrap cloud providers (Anthropic Claude, Google Gemini)
// behind a uniform conversation API. Callers that need structured JSON
// output request it in the prompt and parse the returned text.
type LLMService interface {
	// Chat generates a completion response based on the conversation
	// history. The messages slice should contain the full conversation
	// context in chronological order, including system prompts.
	Chat(ctx context.Context, messages []Message) (string, error)

	// HealthCheck verifies the LLM service is operational and can handle
	// requests.
	HealthCheck(ctx context.Context) error

	// Close releases resources and performs cleanup operations
	Close() error
}

// VisionService defines OCR over image documents using a vision-capable
// model. The returned string is the recognized text, reading order
// preserved as well as the model allows.
type VisionService interface {
	// RecognizeText extracts the text visible in an image
	RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error)
}
