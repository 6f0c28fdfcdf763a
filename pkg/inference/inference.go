// Package inference provides a unified interface for language model inference.
//
// The package abstracts chat completions and raw text completions behind a
// single Provider interface, so any OpenAI-compatible server (OpenAI, vLLM,
// Ollama, text-generation-inference, LocalAI) can generate replies.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:8000/v1"),
//	    inference.WithModel("microsoft/phi-2"),
//	)
//	defer client.Close()
//
//	// Raw completion for causal models
//	resp, _ := client.Complete(ctx, &inference.CompletionRequest{
//	    Prompt:    "Me: hi\nYou:",
//	    MaxTokens: 30,
//	})
//
//	// Chat for instruction-tuned models
//	chat, _ := client.Chat(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        inference.NewUserMessage("Hello!"),
//	    },
//	})
package inference

import "context"

// Provider is the unified inference interface.
// All implementations must satisfy this interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Complete continues a raw text prompt.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns what features this provider supports.
	Capabilities() Capabilities

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Capabilities describes what features a provider supports.
type Capabilities struct {
	Chat       bool // Supports /chat/completions
	Completion bool // Supports /completions
}

// Sampling holds generation parameters shared by chat and completion.
// Zero values and nil pointers fall back to the provider defaults.
// Temperature and TopP are pointers so an explicit 0 can be sent.
type Sampling struct {
	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature *float64

	// TopP controls nucleus sampling.
	TopP *float64

	// Stop sequences that halt generation.
	Stop []string
}

// Float returns a pointer to v, for Sampling fields.
func Float(v float64) *float64 {
	return &v
}

// ChatRequest for chat completions.
type ChatRequest struct {
	Sampling

	// Messages is the conversation so far.
	Messages []Message
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// CompletionRequest for raw text completions.
type CompletionRequest struct {
	Sampling

	// Prompt is the text to continue.
	Prompt string

	// Echo asks the server to include the prompt in the output, the way
	// Hugging Face text-generation pipelines do by default.
	Echo bool
}

// CompletionResponse from a text completion.
type CompletionResponse struct {
	// Text is the generated continuation (prefixed by the prompt when Echo).
	Text string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
