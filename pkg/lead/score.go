// Package lead scores buyer interest from interaction signals.
package lead

import (
	"time"
)

// Score bounds. Every score this package returns lies in [MinScore, MaxScore].
const (
	MinScore = 0
	MaxScore = 100
)

// Points for contact details and channel use.
const (
	NamePoints  = 10
	EmailPoints = 15
	PhonePoints = 20
	VoicePoints = 15
)

// Signals are the interaction facts a score is computed from.
type Signals struct {
	HasName      bool
	HasEmail     bool
	HasPhone     bool
	TimeSpent    time.Duration
	MessageCount int
	UsedVoice    bool
	PagesViewed  int
}

// DurationTier awards Points once a duration reaches Min.
type DurationTier struct {
	Min    time.Duration
	Points int
}

// CountTier awards Points once a count reaches Min.
type CountTier struct {
	Min    int
	Points int
}

// Weights is the scoring table. Within a tier list the highest tier reached
// wins; tiers do not accumulate.
type Weights struct {
	Name     int
	Email    int
	Phone    int
	Voice    int
	Time     []DurationTier
	Messages []CountTier
	Pages    []CountTier
}

// DefaultWeights is the production scoring table.
var DefaultWeights = Weights{
	Name:  NamePoints,
	Email: EmailPoints,
	Phone: PhonePoints,
	Voice: VoicePoints,
	Time: []DurationTier{
		{Min: 30 * time.Second, Points: 5},
		{Min: 2 * time.Minute, Points: 10},
		{Min: 5 * time.Minute, Points: 20},
	},
	Messages: []CountTier{
		{Min: 1, Points: 5},
		{Min: 3, Points: 10},
		{Min: 6, Points: 15},
		{Min: 10, Points: 20},
	},
	Pages: []CountTier{
		{Min: 2, Points: 5},
		{Min: 4, Points: 10},
	},
}

// Score computes the clamped lead score for s.
func Score(s Signals, w Weights) int {
	total := 0
	if s.HasName {
		total += w.Name
	}
	if s.HasEmail {
		total += w.Email
	}
	if s.HasPhone {
		total += w.Phone
	}
	if s.UsedVoice {
		total += w.Voice
	}
	total += durationPoints(s.TimeSpent, w.Time)
	total += countPoints(s.MessageCount, w.Messages)
	total += countPoints(s.PagesViewed, w.Pages)
	return Clamp(total)
}

// ApplyDelta adjusts score by delta and clamps the result. Deltas come from
// the network, so both operands are bounded before the add.
func ApplyDelta(score, delta int) int {
	span := MaxScore - MinScore
	delta = max(-span, min(delta, span))
	return Clamp(Clamp(score) + delta)
}

// Clamp limits n to [MinScore, MaxScore].
func Clamp(n int) int {
	switch {
	case n < MinScore:
		return MinScore
	case n > MaxScore:
		return MaxScore
	default:
		return n
	}
}

// Temperature buckets a score for realtor notifications.
func Temperature(score int) string {
	switch {
	case score >= 70:
		return "hot"
	case score >= 40:
		return "warm"
	default:
		return "cold"
	}
}

func durationPoints(d time.Duration, tiers []DurationTier) int {
	best := 0
	for _, t := range tiers {
		if d >= t.Min && t.Points > best {
			best = t.Points
		}
	}
	return best
}

func countPoints(n int, tiers []CountTier) int {
	best := 0
	for _, t := range tiers {
		if n >= t.Min && t.Points > best {
			best = t.Points
		}
	}
	return best
}
