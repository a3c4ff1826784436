package fake

import (
	"context"
	"strings"
	"sync"

	"github.com/chriscow/listing-voice-go/pkg/ai/llm"
)

// FakeLLM is a fake LLM implementation for testing.
type FakeLLM struct {
	mu        sync.Mutex
	responses []string
	callCount int
	err       error
	requests  []llm.ChatRequest
}

// NewFakeLLM creates a new fake LLM provider with predefined responses.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{
			"This home has a lot to offer. What would you like to know?",
			"Happy to help with any questions about the property.",
		}
	}
	return &FakeLLM{responses: responses}
}

// FailWith makes every Chat call return err.
func (f *FakeLLM) FailWith(err error) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// Chat cycles through the predefined responses. When functions are offered
// and the last user message asks to "schedule", it calls the first function.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}

	response := f.responses[f.callCount%len(f.responses)]
	f.callCount++

	if len(req.Functions) > 0 && len(req.Messages) > 0 {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == llm.RoleUser && strings.Contains(strings.ToLower(last.Content), "schedule") {
			return llm.ChatResponse{
				Message: llm.Message{Role: llm.RoleAssistant, Content: response},
				FunctionCall: &llm.FunctionCall{
					Name:      req.Functions[0].Name,
					Arguments: `{"reason":"fake"}`,
				},
				TokensUsed:   50,
				FinishReason: "tool_calls",
			}, nil
		}
	}

	return llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: response},
		TokensUsed:   len(strings.Fields(response)) + 10,
		FinishReason: "stop",
	}, nil
}

// Requests returns every request received so far.
func (f *FakeLLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.ChatRequest(nil), f.requests...)
}

// Capabilities returns the fake LLM capabilities.
func (f *FakeLLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsFunctions: true,
		MaxTokens:         4096,
		Model:             "fake-model",
	}
}
