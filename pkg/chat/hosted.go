package chat

import (
	"context"
	"errors"
)

// ChatRequest is the body sent to the hosted chat function.
type ChatRequest struct {
	Message    string `json:"message" validate:"required"`
	PropertyID string `json:"propertyId"`
	SessionID  string `json:"sessionId"`
}

// ChatResponse is the hosted chat function's reply. LeadScore is a delta to
// apply to the session's lead score.
type ChatResponse struct {
	Response           string `json:"response"`
	LeadScore          *int   `json:"leadScore,omitempty"`
	TriggerAppointment bool   `json:"triggerAppointment,omitempty"`
}

// ChatClient calls the hosted chat function.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// HostedResponder resolves messages through a ChatClient.
type HostedResponder struct {
	client ChatClient
}

// NewHostedResponder creates a responder backed by client.
func NewHostedResponder(client ChatClient) *HostedResponder {
	return &HostedResponder{client: client}
}

// Resolve implements Resolver.
func (h *HostedResponder) Resolve(ctx context.Context, message string, pc PropertyContext) (Reply, error) {
	resp, err := h.client.Chat(ctx, ChatRequest{
		Message:    message,
		PropertyID: pc.Property.ID,
		SessionID:  pc.SessionID,
	})
	if err != nil {
		return Reply{}, err
	}
	if resp.Response == "" {
		return Reply{}, errors.New("chat function returned an empty response")
	}
	return Reply{
		Text:               resp.Response,
		ScoreDelta:         resp.LeadScore,
		TriggerAppointment: resp.TriggerAppointment,
		Category:           CategoryHosted,
	}, nil
}

// ToResponse converts a reply to the hosted function's wire shape.
func (r Reply) ToResponse() ChatResponse {
	return ChatResponse{
		Response:           r.Text,
		LeadScore:          r.ScoreDelta,
		TriggerAppointment: r.TriggerAppointment,
	}
}

// Fallback tries each resolver in order and returns the first success.
func Fallback(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, message string, pc PropertyContext) (Reply, error) {
		var errs []error
		for _, r := range resolvers {
			reply, err := r.Resolve(ctx, message, pc)
			if err == nil {
				return reply, nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return Reply{}, errors.New("chat: no resolvers configured")
		}
		return Reply{}, errors.Join(errs...)
	})
}
