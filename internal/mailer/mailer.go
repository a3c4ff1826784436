// Package mailer emails the realtor about new leads and booked showings.
package mailer

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
)

// Sender delivers a composed message.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer composes realtor notifications.
type Mailer struct {
	sender     Sender
	from       string
	senderName string
	log        zerolog.Logger
}

// Config holds SMTP settings.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	SenderName string
}

// New creates a mailer that sends over SMTP.
func New(cfg Config, log zerolog.Logger) *Mailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewWithSender(d, cfg.Username, cfg.SenderName, log)
}

// NewWithSender creates a mailer on an arbitrary sender.
func NewWithSender(s Sender, from, senderName string, log zerolog.Logger) *Mailer {
	return &Mailer{sender: s, from: from, senderName: senderName, log: log}
}

// LeadCaptured tells the realtor a buyer left contact details.
func (m *Mailer) LeadCaptured(ctx context.Context, to string, l *lead.Lead, p *listing.Property) error {
	subject, body := leadEmail(l, p)
	return m.send(ctx, to, subject, body)
}

func leadEmail(l *lead.Lead, p *listing.Property) (subject, body string) {
	subject = fmt.Sprintf("New %s lead for %s (score %d, %s)",
		l.Source, propertyName(p), l.Score, lead.Temperature(l.Score))

	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">`)
	fmt.Fprintf(&b, "<h2>New lead for %s</h2>", html.EscapeString(propertyName(p)))
	row(&b, "Name", l.Name)
	row(&b, "Email", l.Email)
	row(&b, "Phone", l.Phone)
	row(&b, "Lead score", fmt.Sprintf("%d / 100", l.Score))
	row(&b, "Messages", fmt.Sprint(l.Messages))
	if l.UsedVoice {
		row(&b, "Used voice", "yes")
	}
	if l.Transcript != "" {
		fmt.Fprintf(&b, "<h3>Conversation</h3><pre>%s</pre>", html.EscapeString(l.Transcript))
	}
	b.WriteString("</div>")

	return subject, b.String()
}

// AppointmentBooked tells the realtor a buyer asked for a showing.
func (m *Mailer) AppointmentBooked(ctx context.Context, to string, a *lead.Appointment, p *listing.Property) error {
	subject, body := appointmentEmail(a, p)
	return m.send(ctx, to, subject, body)
}

func appointmentEmail(a *lead.Appointment, p *listing.Property) (subject, body string) {
	when := a.ScheduledAt.Format("Mon Jan 2, 3:04 PM MST")
	subject = fmt.Sprintf("Showing requested: %s on %s", propertyName(p), when)

	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">`)
	fmt.Fprintf(&b, "<h2>Showing requested for %s</h2>", html.EscapeString(propertyName(p)))
	row(&b, "When", when)
	row(&b, "Name", a.Name)
	row(&b, "Email", a.Email)
	row(&b, "Phone", a.Phone)
	row(&b, "Notes", a.Notes)
	b.WriteString("</div>")

	return subject, b.String()
}

// compose builds the message without sending it.
func (m *Mailer) compose(to, subject, body string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.senderName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	return msg
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("no recipient for %q", subject)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.sender.DialAndSend(m.compose(to, subject, body)); err != nil {
		m.log.Error().Err(err).Str("to", to).Msg("Failed to send email")
		return err
	}
	m.log.Info().Str("to", to).Str("subject", subject).Msg("Email sent")
	return nil
}

func row(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<p><strong>%s:</strong> %s</p>", label, html.EscapeString(value))
}

func propertyName(p *listing.Property) string {
	if p == nil {
		return "your listing"
	}
	return p.Name()
}
