package openai

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/ai/llm"
)

// DefaultChatModel is used when no model is configured.
const DefaultChatModel = "gpt-4o-mini"

// LLM implements llm.LLM using OpenAI chat completions.
type LLM struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewLLM creates an OpenAI chat provider.
func NewLLM(apiKey, baseURL, model string) (*LLM, error) {
	client, err := newClient(apiKey, baseURL)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultChatModel
	}
	return &LLM{client: client, model: model, log: logging.WithComponent("openai-llm")}, nil
}

// Chat performs chat completion with conversation history. Offered
// functions are sent as tools; the first tool call is returned as the
// response's FunctionCall.
func (o *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	var tools []openai.Tool
	for _, fn := range req.Functions {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       tools,
	})
	if err != nil {
		o.log.Error().Err(err).Str("model", o.model).Msg("chat completion failed")
		return llm.ChatResponse{}, classify(err, "chat completion request failed")
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, ai.NewRecoverableError(errors.New("no choices"), "chat completion returned nothing")
	}

	choice := resp.Choices[0]
	result := llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: choice.Message.Content,
		},
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}
	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		result.FunctionCall = &llm.FunctionCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}

	o.log.Debug().
		Int("tokens", resp.Usage.TotalTokens).
		Bool("functionCall", result.FunctionCall != nil).
		Dur("duration", time.Since(start)).
		Msg("chat completion")

	return result, nil
}

// Capabilities returns the OpenAI provider's capabilities.
func (o *LLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsFunctions: true,
		MaxTokens:         128000,
		Model:             o.model,
	}
}
