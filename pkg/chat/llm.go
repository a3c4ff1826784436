package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/chriscow/listing-voice-go/pkg/ai/llm"
)

// CategoryLLM labels replies produced by a language model.
const CategoryLLM Category = "llm"

// ScheduleShowingFunction is offered to the model so it can ask for the
// appointment widget.
const ScheduleShowingFunction = "schedule_showing"

const defaultHistory = 10

// LLMResolver answers with a chat-completion model primed with the listing.
type LLMResolver struct {
	model       llm.LLM
	history     int
	maxTokens   int
	temperature float32
}

// NewLLMResolver creates a resolver that keeps the last 10 messages of history.
func NewLLMResolver(model llm.LLM) *LLMResolver {
	return &LLMResolver{
		model:       model,
		history:     defaultHistory,
		maxTokens:   300,
		temperature: 0.7,
	}
}

// Resolve implements Resolver.
func (r *LLMResolver) Resolve(ctx context.Context, message string, pc PropertyContext) (Reply, error) {
	req := llm.ChatRequest{
		Messages:    r.messages(message, pc),
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}
	if r.model.Capabilities().SupportsFunctions {
		req.Functions = []llm.FunctionDefinition{scheduleShowing}
	}

	resp, err := r.model.Chat(ctx, req)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Text: resp.Message.Content, Category: CategoryLLM}
	if resp.FunctionCall != nil && resp.FunctionCall.Name == ScheduleShowingFunction {
		reply.TriggerAppointment = true
		reply.ScoreDelta = delta(ShowingDelta)
		if reply.Text == "" {
			reply.Text = showingReply(pc.Property).Text
		}
	}
	if reply.Text == "" {
		return Reply{}, errors.New("model returned an empty reply")
	}
	return reply, nil
}

func (r *LLMResolver) messages(message string, pc PropertyContext) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt(pc)}}

	history := pc.History
	if len(history) > r.history {
		history = history[len(history)-r.history:]
	}
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
}

func systemPrompt(pc PropertyContext) string {
	return fmt.Sprintf("You are a helpful real estate assistant answering a buyer's questions about one property. "+
		"Answer in two or three friendly sentences using only the facts below; if you don't know, offer to connect them with %s. "+
		"When the buyer wants to see the home, call %s.\n\nProperty: %s",
		pc.Property.Agent(), ScheduleShowingFunction, pc.Property.Summary())
}

var scheduleShowing = llm.FunctionDefinition{
	Name:        ScheduleShowingFunction,
	Description: "Open the showing scheduler when the buyer wants to visit the property",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Why the buyer wants a showing",
			},
		},
	},
}
