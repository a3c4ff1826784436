// Package notify runs the side effects of a captured lead or a booked
// showing: persisting the record, emailing and texting the realtor, and
// publishing an event. Callers never wait on or see the outcome.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/events"
	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
)

// Store persists leads and appointments.
type Store interface {
	CreateLead(ctx context.Context, l *lead.Lead) error
	CreateAppointment(ctx context.Context, a *lead.Appointment) error
}

// Mailer emails the realtor.
type Mailer interface {
	LeadCaptured(ctx context.Context, to string, l *lead.Lead, p *listing.Property) error
	AppointmentBooked(ctx context.Context, to string, a *lead.Appointment, p *listing.Property) error
}

// SMSSender texts the realtor.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Realtor is where notifications go when the listing names no agent contact.
type Realtor struct {
	Email string
	Phone string
}

const defaultTimeout = 30 * time.Second

// Dispatcher runs side effects in the background.
type Dispatcher struct {
	store     Store
	mailer    Mailer
	sms       SMSSender
	publisher events.Publisher
	realtor   Realtor
	timeout   time.Duration
	log       zerolog.Logger
	metrics   *metrics.Metrics

	wg sync.WaitGroup
}

// Option configures a Dispatcher. Collaborators left unset are skipped.
type Option func(*Dispatcher)

func WithStore(s Store) Option { return func(d *Dispatcher) { d.store = s } }
func WithMailer(m Mailer) Option { return func(d *Dispatcher) { d.mailer = m } }
func WithSMS(s SMSSender) Option { return func(d *Dispatcher) { d.sms = s } }
func WithPublisher(p events.Publisher) Option { return func(d *Dispatcher) { d.publisher = p } }
func WithRealtor(r Realtor) Option { return func(d *Dispatcher) { d.realtor = r } }
func WithTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.timeout = t } }
func WithLogger(l zerolog.Logger) Option { return func(d *Dispatcher) { d.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// New creates a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		timeout: defaultTimeout,
		log:     logging.WithComponent("notify"),
		metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// LeadCaptured persists l and then notifies the realtor. It returns at once.
func (d *Dispatcher) LeadCaptured(l lead.Lead, p *listing.Property) {
	d.run("lead", func(ctx context.Context, log zerolog.Logger) {
		if d.store != nil {
			d.step(ctx, log, "store_lead", func(ctx context.Context) error { return d.store.CreateLead(ctx, &l) })
		}

		email, phone := d.contacts(p)
		var wg sync.WaitGroup
		d.async(ctx, &wg, log, "email_lead", d.mailer != nil && email != "", func(ctx context.Context) error {
			return d.mailer.LeadCaptured(ctx, email, &l, p)
		})
		d.async(ctx, &wg, log, "sms_lead", d.sms != nil && phone != "", func(ctx context.Context) error {
			return d.sms.SendSMS(ctx, phone, leadSMS(&l, p))
		})
		d.async(ctx, &wg, log, "event_lead", d.publisher != nil, func(ctx context.Context) error {
			return d.publisher.Publish(ctx, events.New(events.TypeLeadCaptured, l.ID, l.PropertyID, l))
		})
		wg.Wait()
	})
}

// AppointmentBooked persists a and then notifies the realtor. It returns at once.
func (d *Dispatcher) AppointmentBooked(a lead.Appointment, p *listing.Property) {
	d.run("appointment", func(ctx context.Context, log zerolog.Logger) {
		if d.store != nil {
			d.step(ctx, log, "store_appointment", func(ctx context.Context) error { return d.store.CreateAppointment(ctx, &a) })
		}

		email, phone := d.contacts(p)
		var wg sync.WaitGroup
		d.async(ctx, &wg, log, "email_appointment", d.mailer != nil && email != "", func(ctx context.Context) error {
			return d.mailer.AppointmentBooked(ctx, email, &a, p)
		})
		d.async(ctx, &wg, log, "sms_appointment", d.sms != nil && phone != "", func(ctx context.Context) error {
			return d.sms.SendSMS(ctx, phone, appointmentSMS(&a, p))
		})
		d.async(ctx, &wg, log, "event_appointment", d.publisher != nil, func(ctx context.Context) error {
			return d.publisher.Publish(ctx, events.New(events.TypeAppointmentBooked, a.ID, a.PropertyID, a))
		})
		wg.Wait()
	})
}

// Publish sends a bare event in the background.
func (d *Dispatcher) Publish(ev events.Event) {
	if d.publisher == nil {
		return
	}
	d.run(ev.Type, func(ctx context.Context, log zerolog.Logger) {
		d.step(ctx, log, "event", func(ctx context.Context) error { return d.publisher.Publish(ctx, ev) })
	})
}

// Wait blocks until every dispatched side effect has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(kind string, fn func(ctx context.Context, log zerolog.Logger)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx, d.log.With().Str("kind", kind).Logger())
	}()
}

func (d *Dispatcher) async(ctx context.Context, wg *sync.WaitGroup, log zerolog.Logger, name string, enabled bool, fn func(context.Context) error) {
	if !enabled {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.step(ctx, log, name, fn)
	}()
}

// step runs one side effect, logging and counting the outcome. Panics are
// contained to the step.
func (d *Dispatcher) step(ctx context.Context, log zerolog.Logger, name string, fn func(context.Context) error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn(ctx)
	}()

	d.metrics.RecordSideEffect(name, err)
	if err != nil {
		log.Warn().Err(err).Str("effect", name).Msg("side effect failed")
		return
	}
	log.Debug().Str("effect", name).Msg("side effect done")
}

// contacts prefers the listing agent's details over the configured realtor.
func (d *Dispatcher) contacts(p *listing.Property) (email, phone string) {
	email, phone = d.realtor.Email, d.realtor.Phone
	if p != nil {
		if p.AgentEmail != "" {
			email = p.AgentEmail
		}
		if p.AgentPhone != "" {
			phone = p.AgentPhone
		}
	}
	return email, phone
}

func leadSMS(l *lead.Lead, p *listing.Property) string {
	contact := l.Phone
	if contact == "" {
		contact = l.Email
	}
	return fmt.Sprintf("New %s lead for %s: %s (%s), score %d.",
		lead.Temperature(l.Score), name(p), l.Name, contact, l.Score)
}

func appointmentSMS(a *lead.Appointment, p *listing.Property) string {
	return fmt.Sprintf("Showing request for %s: %s on %s.",
		name(p), a.Name, a.ScheduledAt.Format("Jan 2 3:04 PM"))
}

func name(p *listing.Property) string {
	if p == nil {
		return "your listing"
	}
	return p.Name()
}
