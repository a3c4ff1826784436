package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
)

// Conversation is one buyer's chat about a property. SendMessage always
// appends exactly one assistant reply, even when the resolver fails.
type Conversation struct {
	resolver  Resolver
	property  listing.Property
	sessionID string
	path      string
	onMessage func(Message)
	now       func() time.Time
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu          sync.Mutex
	messages    []Message
	score       int
	appointment bool
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithSessionID sets the session ID instead of generating one.
func WithSessionID(id string) ConversationOption {
	return func(c *Conversation) { c.sessionID = id }
}

// WithPath labels resolutions in metrics, e.g. "hosted" or "keyword".
func WithPath(path string) ConversationOption {
	return func(c *Conversation) { c.path = path }
}

// OnMessage is called with every message appended to the transcript.
func OnMessage(fn func(Message)) ConversationOption {
	return func(c *Conversation) { c.onMessage = fn }
}

// WithConversationLogger overrides the logger.
func WithConversationLogger(l zerolog.Logger) ConversationOption {
	return func(c *Conversation) { c.log = l }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *metrics.Metrics) ConversationOption {
	return func(c *Conversation) { c.metrics = m }
}

// NewConversation starts an empty conversation about p.
func NewConversation(r Resolver, p listing.Property, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		resolver: r,
		property: p,
		path:     "resolver",
		now:      time.Now,
		log:      logging.WithComponent("chat"),
		metrics:  metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	c.log = logging.WithSession(c.log, c.sessionID)
	return c
}

// SendMessage records the user's message, resolves a reply and records it.
// Blank input is ignored and returns false.
func (c *Conversation) SendMessage(ctx context.Context, text string) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}

	c.mu.Lock()
	history := append([]Message(nil), c.messages...)
	c.mu.Unlock()
	c.append(Message{Role: RoleUser, Text: text, At: c.now()})

	reply, err := c.resolve(ctx, text, PropertyContext{
		Property:  c.property,
		SessionID: c.sessionID,
		History:   history,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("chat resolution failed; using fallback")
		c.metrics.RecordChatFallback()
		reply = Reply{Text: FallbackText}
	} else {
		c.metrics.RecordChatResolution(c.path, string(reply.Category))
	}

	c.mu.Lock()
	if reply.ScoreDelta != nil {
		c.score = lead.ApplyDelta(c.score, *reply.ScoreDelta)
	}
	if reply.TriggerAppointment {
		c.appointment = true
	}
	c.mu.Unlock()

	msg := Message{Role: RoleAssistant, Text: reply.Text, At: c.now()}
	c.append(msg)
	return msg, true
}

func (c *Conversation) resolve(ctx context.Context, text string, pc PropertyContext) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("chat resolver panicked")
			reply, err = Reply{}, errResolverPanic
		}
	}()
	reply, err = c.resolver.Resolve(ctx, text, pc)
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = errEmptyReply
	}
	return reply, err
}

func (c *Conversation) append(m Message) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	if c.onMessage != nil {
		c.onMessage(m)
	}
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// LeadScore is the running score from reply deltas, in [0,100].
func (c *Conversation) LeadScore() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.score
}

// AppointmentRequested reports whether any reply asked for the scheduler.
func (c *Conversation) AppointmentRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appointment
}

// SessionID identifies the conversation to the hosted chat function.
func (c *Conversation) SessionID() string { return c.sessionID }

// UserMessageCount counts the buyer's messages, for lead scoring.
func (c *Conversation) UserMessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
