// Package store persists leads, appointments and listing data in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// gormWriter sends gorm's log lines to zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Debug().Msgf(format, args...)
}

// Open connects to Postgres and sizes the connection pool.
func Open(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.New(gormWriter{log: log}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Repository reads and writes the service's tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps an open database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Property{}, &Lead{}, &Appointment{})
}

// CreateLead inserts l, filling in its ID and CreatedAt.
func (r *Repository) CreateLead(ctx context.Context, l *lead.Lead) error {
	m := leadToModel(l)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	l.ID = m.ID.String()
	l.CreatedAt = m.CreatedAt
	return nil
}

// CreateAppointment inserts a, filling in its ID and CreatedAt.
func (r *Repository) CreateAppointment(ctx context.Context, a *lead.Appointment) error {
	m := appointmentToModel(a)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	a.ID = m.ID.String()
	a.CreatedAt = m.CreatedAt
	return nil
}

// ListLeads returns a property's leads, newest first.
func (r *Repository) ListLeads(ctx context.Context, propertyID string) ([]*lead.Lead, error) {
	var rows []*Lead
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	leads := make([]*lead.Lead, 0, len(rows))
	for _, m := range rows {
		leads = append(leads, m.toEntity())
	}
	return leads, nil
}

// ListAppointments returns a property's appointments in schedule order.
func (r *Repository) ListAppointments(ctx context.Context, propertyID string) ([]*lead.Appointment, error) {
	var rows []*Appointment
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("scheduled_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	appts := make([]*lead.Appointment, 0, len(rows))
	for _, m := range rows {
		appts = append(appts, m.toEntity())
	}
	return appts, nil
}

// GetProperty loads a property by id.
func (r *Repository) GetProperty(ctx context.Context, id string) (*listing.Property, error) {
	var m Property
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m.toEntity(), nil
}

// SaveProperty inserts or replaces a property.
func (r *Repository) SaveProperty(ctx context.Context, p *listing.Property) error {
	return r.db.WithContext(ctx).Save(propertyToModel(p)).Error
}
