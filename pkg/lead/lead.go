package lead

import "time"

// Source is the channel a lead came in through.
type Source string

const (
	SourceChat  Source = "chat"
	SourceVoice Source = "voice"
	SourceForm  Source = "form"
)

// Lead is a buyer who left contact details.
type Lead struct {
	ID          string    `json:"id"`
	PropertyID  string    `json:"propertyId" validate:"required"`
	SessionID   string    `json:"sessionId"`
	Name        string    `json:"name" validate:"required,max=120"`
	Email       string    `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone       string    `json:"phone" validate:"required_without=Email,omitempty,min=7,max=20"`
	Source      Source    `json:"source" validate:"omitempty,oneof=chat voice form"`
	Score       int       `json:"score" validate:"gte=0,lte=100"`
	Messages    int       `json:"messageCount" validate:"gte=0"`
	TimeSpent   int       `json:"timeSpentSeconds" validate:"gte=0"`
	UsedVoice   bool      `json:"usedVoice"`
	PagesViewed int       `json:"pagesViewed" validate:"gte=0"`
	Transcript  string    `json:"transcript,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Signals derives scoring signals from the lead's contact and interaction data.
func (l Lead) Signals() Signals {
	return Signals{
		HasName:      l.Name != "",
		HasEmail:     l.Email != "",
		HasPhone:     l.Phone != "",
		TimeSpent:    time.Duration(l.TimeSpent) * time.Second,
		MessageCount: l.Messages,
		UsedVoice:    l.UsedVoice || l.Source == SourceVoice,
		PagesViewed:  l.PagesViewed,
	}
}

// Appointment is a requested property showing.
type Appointment struct {
	ID          string    `json:"id"`
	PropertyID  string    `json:"propertyId" validate:"required"`
	LeadID      string    `json:"leadId"`
	Name        string    `json:"name" validate:"required,max=120"`
	Email       string    `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone       string    `json:"phone" validate:"required_without=Email,omitempty,min=7,max=20"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	Notes       string    `json:"notes,omitempty" validate:"max=1000"`
	CreatedAt   time.Time `json:"createdAt"`
}
