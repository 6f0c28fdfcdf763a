package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/teslashibe/go-parley/pkg/inference"
)

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("Be nice.", "how was your day")
	want := "Be nice.\nMe: how was your day\nYou:"
	if got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}

func TestCleanReply(t *testing.T) {
	prompt := BuildPrompt("Be nice.", "hi")

	tests := []struct {
		name      string
		generated string
		want      string
	}{
		{"plain continuation", " Hey, good to hear from you!", "Hey, good to hear from you!"},
		{"echoed prompt", prompt + " Oh hey!\nMe: what", "Oh hey!"},
		{"extra You turn", "Sure.\nYou: Actually, tell me more.", "Actually, tell me more."},
		{"later You turn wins", "Totally agree.\nMe: and then\nYou: yes", "yes"},
		{"multi line no markers", "Line one\nline two", "Line one"},
		{"only whitespace", "   \n ", ""},
		{"You at end", "You:", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanReply(prompt, tt.generated); got != tt.want {
				t.Errorf("CleanReply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResponderCompletion(t *testing.T) {
	llm := inference.NewMock()
	var got *inference.CompletionRequest
	llm.CompleteFunc = func(ctx context.Context, req *inference.CompletionRequest) (*inference.CompletionResponse, error) {
		got = req
		return &inference.CompletionResponse{Text: " Aw, that sounds rough.\nMe: yeah", FinishReason: "stop"}, nil
	}

	r, err := NewResponder(llm)
	if err != nil {
		t.Fatal(err)
	}

	reply, err := r.Reply(context.Background(), "  I had a long day  ")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply.Text != "Aw, that sounds rough." {
		t.Errorf("unexpected reply %q", reply.Text)
	}

	if !strings.HasPrefix(got.Prompt, DefaultInstruction) {
		t.Error("prompt should start with the instruction")
	}
	if !strings.HasSuffix(got.Prompt, "\nMe: I had a long day\nYou:") {
		t.Errorf("unexpected prompt tail %q", got.Prompt)
	}
	if got.MaxTokens != 30 || got.Temperature == nil || *got.Temperature != 0.7 || got.TopP == nil || *got.TopP != 0.9 {
		t.Errorf("unexpected sampling %+v", got.Sampling)
	}
	if len(got.Stop) != 1 || got.Stop[0] != "\nMe:" {
		t.Errorf("unexpected stop %v", got.Stop)
	}
	if llm.CallCount("Chat") != 0 {
		t.Error("completion mode should not call Chat")
	}
}

func TestResponderChat(t *testing.T) {
	llm := inference.NewMock()
	var got *inference.ChatRequest
	llm.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		got = req
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("You: Oh nice, where to?")}, nil
	}

	r, err := NewResponder(llm, WithMode(ModeChat), WithInstruction("Be a friend."))
	if err != nil {
		t.Fatal(err)
	}

	reply, err := r.Reply(context.Background(), "I'm going on a trip")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply.Text != "Oh nice, where to?" {
		t.Errorf("unexpected reply %q", reply.Text)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != inference.RoleSystem || got.Messages[0].Content != "Be a friend." {
		t.Errorf("unexpected system message %+v", got.Messages[0])
	}
	if got.Messages[1].Content != "Me: I'm going on a trip\nYou:" {
		t.Errorf("unexpected user message %q", got.Messages[1].Content)
	}
}

func TestResponderEmptyReply(t *testing.T) {
	llm := inference.NewMock()
	llm.CompleteFunc = func(ctx context.Context, req *inference.CompletionRequest) (*inference.CompletionResponse, error) {
		return &inference.CompletionResponse{Text: "\n\n"}, nil
	}

	r, _ := NewResponder(llm)
	if _, err := r.Reply(context.Background(), "hello"); !errors.Is(err, ErrEmptyReply) {
		t.Errorf("expected ErrEmptyReply, got %v", err)
	}
}

func TestResponderErrors(t *testing.T) {
	boom := errors.New("boom")
	r, _ := NewResponder(inference.WithError(boom))

	if _, err := r.Reply(context.Background(), "hello"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
	if _, err := r.Reply(context.Background(), "   "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}

	if _, err := NewResponder(nil); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := NewResponder(inference.NewMock(), WithMode("poetry")); err == nil {
		t.Error("expected error for unknown mode")
	}
}
