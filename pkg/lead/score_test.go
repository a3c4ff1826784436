package lead

import (
	"math"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		signals Signals
		want    int
	}{
		{"nothing", Signals{}, 0},
		{"name only", Signals{HasName: true}, 10},
		{"full contact", Signals{HasName: true, HasEmail: true, HasPhone: true}, 45},
		{"short visit", Signals{TimeSpent: 29 * time.Second}, 0},
		{"thirty seconds", Signals{TimeSpent: 30 * time.Second}, 5},
		{"long visit", Signals{TimeSpent: 10 * time.Minute}, 20},
		{"one message", Signals{MessageCount: 1}, 5},
		{"five messages", Signals{MessageCount: 5}, 10},
		{"voice", Signals{UsedVoice: true}, 15},
		{"pages", Signals{PagesViewed: 4}, 10},
		{
			"engaged buyer",
			Signals{HasName: true, HasEmail: true, TimeSpent: 3 * time.Minute, MessageCount: 4, PagesViewed: 2},
			10 + 15 + 10 + 10 + 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(Score(tt.signals, DefaultWeights), tt.want)
		})
	}
}

func TestScoreIsBounded(t *testing.T) {
	is := is.New(t)

	maxed := Signals{
		HasName:      true,
		HasEmail:     true,
		HasPhone:     true,
		TimeSpent:    24 * time.Hour,
		MessageCount: 500,
		UsedVoice:    true,
		PagesViewed:  1000,
	}
	is.Equal(Score(maxed, DefaultWeights), MaxScore)
	is.Equal(Score(Signals{MessageCount: 500}, DefaultWeights), 20)

	negative := Signals{TimeSpent: -time.Hour, MessageCount: -5, PagesViewed: math.MinInt}
	is.Equal(Score(negative, DefaultWeights), MinScore)

	heavy := Weights{Name: 1000, Voice: -1000}
	is.Equal(Score(Signals{HasName: true}, heavy), MaxScore)
	is.Equal(Score(Signals{UsedVoice: true}, heavy), MinScore)
}

func TestApplyDelta(t *testing.T) {
	is := is.New(t)
	is.Equal(ApplyDelta(50, 15), 65)
	is.Equal(ApplyDelta(95, 20), 100)
	is.Equal(ApplyDelta(5, -20), 0)
	is.Equal(ApplyDelta(0, math.MaxInt32), 100)
	is.Equal(ApplyDelta(40, math.MaxInt), 100)
	is.Equal(ApplyDelta(40, math.MinInt), 0)
	is.Equal(ApplyDelta(math.MaxInt, 1), 100)
	is.Equal(ApplyDelta(math.MinInt, -1), 0)
}

func TestTemperature(t *testing.T) {
	is := is.New(t)
	is.Equal(Temperature(85), "hot")
	is.Equal(Temperature(40), "warm")
	is.Equal(Temperature(12), "cold")
}

func TestLeadSignals(t *testing.T) {
	is := is.New(t)
	l := Lead{Name: "Ada", Phone: "+15555550100", TimeSpent: 150, Messages: 3, Source: SourceVoice}
	s := l.Signals()
	is.True(s.HasName)
	is.True(!s.HasEmail)
	is.True(s.HasPhone)
	is.True(s.UsedVoice)
	is.Equal(s.TimeSpent, 150*time.Second)
	is.Equal(Score(s, DefaultWeights), 10+20+15+10+10)
}
