package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Authorize checks an action inside one school. Platform admins pass
	// wherever their role grants the action.
	Authorize(ctx context.Context, actorID, schoolID snowflake.ID, object, action string) error
	// AuthorizePlatform checks an action that is not scoped to a school.
	AuthorizePlatform(ctx context.Context, actorID snowflake.ID, object, action string) error
	RequireCronOrAdmin(ctx context.Context, req CronRequest) Result
}

// CronRequest carries the credentials presented to a cron endpoint.
type CronRequest struct {
	Secret  string
	ActorID *snowflake.ID
}

type Result struct {
	Allowed bool
	// Via is "cron" or "admin" when allowed.
	Via string
	Err error
}

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidSchool = errors.New("invalid_school")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
