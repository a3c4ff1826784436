package chat

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// KeywordResolver answers from ordered keyword rules without any network
// dependency. It never returns an error.
type KeywordResolver struct {
	rules   []Rule
	generic []string

	mu  sync.Mutex
	rng *rand.Rand
}

// KeywordOption configures a KeywordResolver.
type KeywordOption func(*KeywordResolver)

// WithRules replaces the default rules. Order is precedence.
func WithRules(rules []Rule) KeywordOption {
	return func(r *KeywordResolver) { r.rules = rules }
}

// WithGenericPrompts replaces the no-match prompts.
func WithGenericPrompts(prompts []string) KeywordOption {
	return func(r *KeywordResolver) { r.generic = prompts }
}

// WithRand sets the source used to pick a generic prompt.
func WithRand(rng *rand.Rand) KeywordOption {
	return func(r *KeywordResolver) { r.rng = rng }
}

// NewKeywordResolver creates a resolver with DefaultRules and GenericPrompts.
func NewKeywordResolver(opts ...KeywordOption) *KeywordResolver {
	r := &KeywordResolver{
		rules:   DefaultRules(),
		generic: GenericPrompts,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return r
}

// Match returns the first rule whose keywords appear in message.
func (r *KeywordResolver) Match(message string) (Rule, bool) {
	lower := strings.ToLower(message)
	for _, rule := range r.rules {
		if rule.Matches(lower) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Resolve implements Resolver.
func (r *KeywordResolver) Resolve(_ context.Context, message string, pc PropertyContext) (Reply, error) {
	if rule, ok := r.Match(message); ok {
		reply := rule.Respond(pc.Property)
		reply.Category = rule.Category
		return reply, nil
	}
	return Reply{Text: r.genericPrompt(pc), Category: CategoryGeneric}, nil
}

func (r *KeywordResolver) genericPrompt(pc PropertyContext) string {
	if len(r.generic) == 0 {
		return GenericPrompts[0]
	}
	r.mu.Lock()
	i := r.rng.IntN(len(r.generic))
	r.mu.Unlock()
	return strings.ReplaceAll(r.generic[i], "{property}", pc.Property.Name())
}
