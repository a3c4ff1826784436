package realtime

import (
	"context"
	"strings"

	"github.com/chriscow/listing-voice-go/pkg/listing"
)

// BasePrompt is the assistant persona for every voice session.
const BasePrompt = "You are a friendly, knowledgeable real estate assistant helping a home buyer " +
	"learn about a property. Keep answers short and conversational, since they are spoken aloud. " +
	"If the buyer wants to see the home, offer to schedule a showing with the listing agent."

// SessionRequest is sent to the session-creation function.
type SessionRequest struct {
	SystemPrompt string `json:"systemPrompt" validate:"required,max=8000"`
	PropertyID   string `json:"propertyId,omitempty"`
}

// VoiceSession is a server-issued realtime session.
type VoiceSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"websocketUrl"`
}

// SessionCreator creates realtime sessions.
type SessionCreator interface {
	CreateSession(ctx context.Context, req SessionRequest) (VoiceSession, error)
}

// SessionCreatorFunc adapts a function to SessionCreator.
type SessionCreatorFunc func(ctx context.Context, req SessionRequest) (VoiceSession, error)

func (f SessionCreatorFunc) CreateSession(ctx context.Context, req SessionRequest) (VoiceSession, error) {
	return f(ctx, req)
}

// BuildSystemPrompt biases the assistant toward the property being viewed.
func BuildSystemPrompt(p *listing.Property) string {
	if p == nil || (p.Title == "" && p.Description == "") {
		return BasePrompt
	}
	var b strings.Builder
	b.WriteString(BasePrompt)
	b.WriteString("\n\nThe buyer is viewing")
	if p.Title != "" {
		b.WriteString(": ")
		b.WriteString(p.Title)
	}
	b.WriteString(".")
	if p.Description != "" {
		b.WriteString(" ")
		b.WriteString(p.Description)
	}
	return b.String()
}
