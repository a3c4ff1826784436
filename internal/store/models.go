package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
)

// Lead is the leads table row.
type Lead struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	PropertyID       string    `gorm:"index;not null"`
	SessionID        string    `gorm:"index"`
	Name             string    `gorm:"not null"`
	Email            string
	Phone            string
	Source           string
	Score            int
	MessageCount     int
	TimeSpentSeconds int
	UsedVoice        bool
	PagesViewed      int
	Transcript       string `gorm:"type:text"`
	CreatedAt        time.Time
}

func (Lead) TableName() string { return "leads" }

// Appointment is the appointments table row.
type Appointment struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PropertyID  string     `gorm:"index;not null"`
	LeadID      *uuid.UUID `gorm:"type:uuid"`
	Name        string     `gorm:"not null"`
	Email       string
	Phone       string
	ScheduledAt time.Time `gorm:"index"`
	Notes       string    `gorm:"type:text"`
	CreatedAt   time.Time
}

func (Appointment) TableName() string { return "appointments" }

// Property is the properties table row.
type Property struct {
	ID           string `gorm:"primaryKey"`
	Title        string
	Description  string `gorm:"type:text"`
	Address      string
	Neighborhood string
	Price        int64
	Bedrooms     int
	Bathrooms    float64
	SquareFeet   int
	YearBuilt    int
	LotSize      string
	Parking      string
	SchoolRating string
	Features     []string `gorm:"serializer:json"`
	AgentName    string
	AgentPhone   string
	AgentEmail   string
	UpdatedAt    time.Time
}

func (Property) TableName() string { return "properties" }

// idOrNew parses s, minting a fresh id when s is empty or malformed.
func idOrNew(s string) uuid.UUID {
	if id, err := uuid.Parse(s); err == nil {
		return id
	}
	return uuid.New()
}

func leadToModel(l *lead.Lead) *Lead {
	return &Lead{
		ID:               idOrNew(l.ID),
		PropertyID:       l.PropertyID,
		SessionID:        l.SessionID,
		Name:             l.Name,
		Email:            l.Email,
		Phone:            l.Phone,
		Source:           string(l.Source),
		Score:            l.Score,
		MessageCount:     l.Messages,
		TimeSpentSeconds: l.TimeSpent,
		UsedVoice:        l.UsedVoice,
		PagesViewed:      l.PagesViewed,
		Transcript:       l.Transcript,
		CreatedAt:        l.CreatedAt,
	}
}

func (m *Lead) toEntity() *lead.Lead {
	return &lead.Lead{
		ID:          m.ID.String(),
		PropertyID:  m.PropertyID,
		SessionID:   m.SessionID,
		Name:        m.Name,
		Email:       m.Email,
		Phone:       m.Phone,
		Source:      lead.Source(m.Source),
		Score:       m.Score,
		Messages:    m.MessageCount,
		TimeSpent:   m.TimeSpentSeconds,
		UsedVoice:   m.UsedVoice,
		PagesViewed: m.PagesViewed,
		Transcript:  m.Transcript,
		CreatedAt:   m.CreatedAt,
	}
}

func appointmentToModel(a *lead.Appointment) *Appointment {
	m := &Appointment{
		ID:          idOrNew(a.ID),
		PropertyID:  a.PropertyID,
		Name:        a.Name,
		Email:       a.Email,
		Phone:       a.Phone,
		ScheduledAt: a.ScheduledAt,
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
	}
	if id, err := uuid.Parse(a.LeadID); err == nil {
		m.LeadID = &id
	}
	return m
}

func (m *Appointment) toEntity() *lead.Appointment {
	a := &lead.Appointment{
		ID:          m.ID.String(),
		PropertyID:  m.PropertyID,
		Name:        m.Name,
		Email:       m.Email,
		Phone:       m.Phone,
		ScheduledAt: m.ScheduledAt,
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
	}
	if m.LeadID != nil {
		a.LeadID = m.LeadID.String()
	}
	return a
}

func propertyToModel(p *listing.Property) *Property {
	return &Property{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Address:      p.Address,
		Neighborhood: p.Neighborhood,
		Price:        p.Price,
		Bedrooms:     p.Bedrooms,
		Bathrooms:    p.Bathrooms,
		SquareFeet:   p.SquareFeet,
		YearBuilt:    p.YearBuilt,
		LotSize:      p.LotSize,
		Parking:      p.Parking,
		SchoolRating: p.SchoolRating,
		Features:     p.Features,
		AgentName:    p.AgentName,
		AgentPhone:   p.AgentPhone,
		AgentEmail:   p.AgentEmail,
	}
}

func (m *Property) toEntity() *listing.Property {
	return &listing.Property{
		ID:           m.ID,
		Title:        m.Title,
		Description:  m.Description,
		Address:      m.Address,
		Neighborhood: m.Neighborhood,
		Price:        m.Price,
		Bedrooms:     m.Bedrooms,
		Bathrooms:    m.Bathrooms,
		SquareFeet:   m.SquareFeet,
		YearBuilt:    m.YearBuilt,
		LotSize:      m.LotSize,
		Parking:      m.Parking,
		SchoolRating: m.SchoolRating,
		Features:     m.Features,
		AgentName:    m.AgentName,
		AgentPhone:   m.AgentPhone,
		AgentEmail:   m.AgentEmail,
	}
}
