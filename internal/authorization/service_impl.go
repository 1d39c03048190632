package authorization

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/schoolbilling/internal/config"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const platformDomain = "platform"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Enforcer   *casbin.SyncedEnforcer
	SchoolRepo schooldomain.Repository
}

type ServiceImpl struct {
	db         *gorm.DB
	log        *zap.Logger
	cronSecret string
	enforcer   *casbin.SyncedEnforcer
	schoolRepo schooldomain.Repository
}

// NewEnforcer persists policies in the casbin_rule table through gorm.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return NewEnforcerWithAdapter(adapter)
}

// NewEnforcerWithAdapter builds the enforcer and seeds the role policies. A nil
// adapter keeps policies in memory only.
func NewEnforcerWithAdapter(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if adapter != nil {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(adapter != nil)
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:         p.DB,
		log:        p.Log.Named("authorization.service"),
		cronSecret: strings.TrimSpace(p.Cfg.CronSecret),
		enforcer:   p.Enforcer,
		schoolRepo: p.SchoolRepo,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actorID, schoolID snowflake.ID, object, action string) error {
	if schoolID == 0 {
		return ErrInvalidSchool
	}
	return s.authorize(ctx, actorID, &schoolID, object, action)
}

func (s *ServiceImpl) AuthorizePlatform(ctx context.Context, actorID snowflake.ID, object, action string) error {
	return s.authorize(ctx, actorID, nil, object, action)
}

func (s *ServiceImpl) authorize(ctx context.Context, actorID snowflake.ID, schoolID *snowflake.ID, object, action string) error {
	if actorID == 0 {
		return ErrUnauthorized
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := s.resolveRole(ctx, actorID, schoolID)
	if err != nil {
		s.logDenied(actorID, schoolID, object, action, err)
		return err
	}

	subject := fmt.Sprintf("user:%s", actorID)
	domain := platformDomain
	if schoolID != nil {
		domain = fmt.Sprintf("school:%s", schoolID)
	}
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(actorID, schoolID, object, action, ErrForbidden)
		return ErrForbidden
	}
	return nil
}

// resolveRole maps the actor to a casbin role. Platform admin wins over any
// school membership.
func (s *ServiceImpl) resolveRole(ctx context.Context, actorID snowflake.ID, schoolID *snowflake.ID) (string, error) {
	admin, err := s.schoolRepo.IsPlatformAdmin(ctx, s.db, actorID)
	if err != nil {
		return "", err
	}
	if admin {
		return RolePlatformAdmin, nil
	}
	if schoolID == nil {
		return "", ErrForbidden
	}

	member, err := s.schoolRepo.FindMember(ctx, s.db, *schoolID, actorID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", ErrForbidden
	}
	switch member.Role {
	case schooldomain.MemberRoleOwner:
		return RoleSchoolOwner, nil
	case schooldomain.MemberRoleAdmin:
		return RoleSchoolAdmin, nil
	default:
		return RoleSchoolMember, nil
	}
}

// ensureGrouping keeps exactly one role per subject and domain, following
// membership changes in the database.
func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil || has {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

// RequireCronOrAdmin admits a matching cron secret or a platform admin. An
// unset secret never matches.
func (s *ServiceImpl) RequireCronOrAdmin(ctx context.Context, req CronRequest) Result {
	secret := strings.TrimSpace(req.Secret)
	if secret != "" && s.cronSecret != "" &&
		subtle.ConstantTimeCompare([]byte(secret), []byte(s.cronSecret)) == 1 {
		return Result{Allowed: true, Via: "cron"}
	}
	if req.ActorID == nil || *req.ActorID == 0 {
		return Result{Err: ErrUnauthorized}
	}
	if err := s.AuthorizePlatform(ctx, *req.ActorID, ObjectCron, ActionCronRun); err != nil {
		return Result{Err: err}
	}
	return Result{Allowed: true, Via: "admin"}
}

func (s *ServiceImpl) logDenied(actorID snowflake.ID, schoolID *snowflake.ID, object, action string, err error) {
	fields := []zap.Field{
		zap.String("actor_id", actorID.String()),
		zap.String("object", object),
		zap.String("action", action),
		zap.Error(err),
	}
	if schoolID != nil {
		fields = append(fields, zap.String("school_id", schoolID.String()))
	}
	s.log.Debug("authorization denied", fields...)
}
