// Package chat answers typed buyer questions about a property, either from a
// hosted chat function or from local keyword rules.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/listing"
)

// FallbackText is the reply shown when the resolver fails.
const FallbackText = "I'm having trouble responding right now. Please try again in a moment."

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation transcript.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// PropertyContext is what a resolver knows about the conversation.
type PropertyContext struct {
	Property  listing.Property
	SessionID string
	History   []Message
}

// Reply is a resolved answer. ScoreDelta is nil when the answer carries no
// lead signal.
type Reply struct {
	Text               string
	ScoreDelta         *int
	TriggerAppointment bool
	Category           Category
}

// Resolver produces a reply for a user message.
type Resolver interface {
	Resolve(ctx context.Context, message string, pc PropertyContext) (Reply, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, message string, pc PropertyContext) (Reply, error)

func (f ResolverFunc) Resolve(ctx context.Context, message string, pc PropertyContext) (Reply, error) {
	return f(ctx, message, pc)
}

func delta(n int) *int { return &n }

var (
	errEmptyReply    = errors.New("chat: resolver returned an empty reply")
	errResolverPanic = errors.New("chat: resolver panicked")
)
