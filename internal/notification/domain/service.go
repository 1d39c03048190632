package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Dispatcher persists billing notifications and delivers them by email.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) (Result, error)
	SentToday(ctx context.Context, contactID snowflake.ID, types []Type) (bool, error)
	ListForContact(ctx context.Context, contactID snowflake.ID, limit int) ([]Notification, error)
}

type Recipient struct {
	ContactID snowflake.ID
	Email     string
	Name      string
}

type Message struct {
	SchoolID  snowflake.ID
	Recipient Recipient
	Type      Type
	Title     string
	Body      string
	Data      map[string]any
}

type Result struct {
	ID snowflake.ID
	// Duplicate is set when an identical notification was already stored today.
	Duplicate bool
	Emailed   bool
}

var (
	ErrInvalidRecipient = errors.New("invalid_notification_recipient")
	ErrInvalidType      = errors.New("invalid_notification_type")
)
