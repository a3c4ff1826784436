package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/matryer/is"

	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
)

func TestLeadModel(t *testing.T) {
	is := is.New(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &lead.Lead{
		PropertyID: "maple",
		Name:       "Jordan",
		Email:      "jordan@example.com",
		Source:     lead.SourceVoice,
		Score:      55,
		Messages:   4,
		TimeSpent:  180,
		CreatedAt:  at,
	}

	m := leadToModel(in)
	is.True(m.ID != uuid.Nil) // a missing id is minted
	is.Equal(m.TimeSpentSeconds, 180)
	is.Equal(m.Source, "voice")

	out := m.toEntity()
	in.ID = m.ID.String()
	is.Equal(*out, *in)

	// A valid id is kept.
	is.Equal(leadToModel(out).ID, m.ID)
}

func TestAppointmentModelLeadLink(t *testing.T) {
	is := is.New(t)
	leadID := uuid.New()

	m := appointmentToModel(&lead.Appointment{PropertyID: "maple", Name: "Sam", LeadID: leadID.String()})
	is.Equal(*m.LeadID, leadID)
	is.Equal(m.toEntity().LeadID, leadID.String())

	m = appointmentToModel(&lead.Appointment{PropertyID: "maple", Name: "Sam"})
	is.True(m.LeadID == nil)
	is.Equal(m.toEntity().LeadID, "")
}

func TestPropertyModel(t *testing.T) {
	is := is.New(t)
	p := &listing.Property{ID: "maple", Title: "Maple Cottage", Price: 450000, Bathrooms: 2.5, Features: []string{"deck"}}
	is.Equal(*propertyToModel(p).toEntity(), *p)
}

func TestTableNames(t *testing.T) {
	is := is.New(t)
	is.Equal(Lead{}.TableName(), "leads")
	is.Equal(Appointment{}.TableName(), "appointments")
	is.Equal(Property{}.TableName(), "properties")
}
