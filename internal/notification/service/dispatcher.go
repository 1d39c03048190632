package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/notification/domain"
	"github.com/smallbiznis/schoolbilling/internal/notification/email"
	"github.com/smallbiznis/schoolbilling/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Repo    domain.Repository
	Email   email.Provider
}

type Dispatcher struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
	repo    domain.Repository
	email   email.Provider
}

func New(p Params) domain.Dispatcher {
	provider := p.Email
	if provider == nil {
		provider = &email.NoOpProvider{}
	}
	return &Dispatcher{
		db:      p.DB,
		log:     p.Log.Named("notification.dispatcher"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    p.Repo,
		email:   provider,
	}
}

// Dispatch stores the notification and then emails it. Email failures are
// logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.Message) (domain.Result, error) {
	if msg.Recipient.ContactID == 0 {
		return domain.Result{}, domain.ErrInvalidRecipient
	}
	if strings.TrimSpace(string(msg.Type)) == "" {
		return domain.Result{}, domain.ErrInvalidType
	}

	now := d.clock.Now()
	day := domain.Day(now)
	data := datatypes.JSONMap{}
	for k, v := range msg.Data {
		data[k] = v
	}

	record := &domain.Notification{
		ID:               d.genID.Generate(),
		SchoolID:         msg.SchoolID,
		ContactID:        msg.Recipient.ContactID,
		NotificationType: msg.Type,
		Title:            msg.Title,
		Body:             msg.Body,
		Data:             data,
		NotifiedOn:       day,
		DedupKey:         domain.DedupKey(msg.Recipient.ContactID, msg.Type, day),
		CreatedAt:        now,
	}

	inserted, err := d.repo.Insert(ctx, d.db, record)
	if err != nil {
		return domain.Result{}, err
	}
	if !inserted {
		d.log.Info("notification already sent today",
			zap.String("school_id", msg.SchoolID.String()),
			zap.String("contact_id", msg.Recipient.ContactID.String()),
			zap.String("notification_type", string(msg.Type)),
		)
		return domain.Result{Duplicate: true}, nil
	}

	d.metrics.RecordNotification(ctx, string(msg.Type))
	result := domain.Result{ID: record.ID}
	result.Emailed = d.deliver(ctx, msg)
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg domain.Message) bool {
	address := strings.TrimSpace(msg.Recipient.Email)
	if address == "" {
		return false
	}

	html, err := renderEmail(emailView{Name: msg.Recipient.Name, Title: msg.Title, Body: msg.Body})
	if err != nil {
		d.log.Warn("render notification email failed", zap.Error(err))
		return false
	}

	err = d.email.Send(ctx, email.Email{
		To:       []string{address},
		ToName:   msg.Recipient.Name,
		Subject:  msg.Title,
		HTMLBody: html,
		TextBody: msg.Body,
	})
	if err != nil {
		d.log.Warn("notification email failed",
			zap.String("provider", d.email.Name()),
			zap.String("notification_type", string(msg.Type)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// SentToday reports whether any of types was stored for the contact on the current UTC day.
func (d *Dispatcher) SentToday(ctx context.Context, contactID snowflake.ID, types []domain.Type) (bool, error) {
	return d.repo.ExistsOn(ctx, d.db, contactID, types, domain.Day(d.clock.Now()))
}

func (d *Dispatcher) ListForContact(ctx context.Context, contactID snowflake.ID, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return d.repo.ListByContact(ctx, d.db, contactID, limit)
}
