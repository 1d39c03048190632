package server

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/schoolbilling/internal/authorization"
	"go.uber.org/zap"
)

const (
	contextActorIDKey = "actor_id"
	contextSchoolKey  = "school_id"

	headerCronSecret = "X-Cron-Secret"
)

// Authenticated requires an HS256 bearer token whose subject is the user id.
func (s *Server) Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, err := s.actorFromBearer(c)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextActorIDKey, actorID)
		c.Next()
	}
}

func (s *Server) actorFromBearer(c *gin.Context) (snowflake.ID, error) {
	raw, ok := bearerToken(c)
	if !ok {
		return 0, jwt.ErrTokenMalformed
	}
	if len(s.jwtSecret) == 0 {
		return 0, jwt.ErrTokenUnverifiable
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, jwt.ErrTokenSignatureInvalid
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return 0, jwt.ErrTokenInvalidClaims
	}
	actorID, err := snowflake.ParseString(strings.TrimSpace(sub))
	if err != nil || actorID == 0 {
		return 0, jwt.ErrTokenInvalidClaims
	}
	return actorID, nil
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func actorID(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextActorIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok && id != 0
}

// schoolID is the :id path parameter, resolved by authorizeSchoolAction.
func schoolID(c *gin.Context) snowflake.ID {
	value, _ := c.Get(contextSchoolKey)
	id, _ := value.(snowflake.ID)
	return id
}

// authorizeSchoolAction checks the actor's role inside the school named by
// the :id path parameter.
func (s *Server) authorizeSchoolAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorID(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		school, err := parseSnowflakeParam(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, school, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextSchoolKey, school)
		c.Next()
	}
}

func (s *Server) authorizePlatformAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorID(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.AuthorizePlatform(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// CronOrAdmin admits the scheduler by shared secret, or a platform admin by
// bearer token. The secret is read from X-Cron-Secret, falling back to a
// bearer value that is not a valid token.
func (s *Server) CronOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := authorization.CronRequest{Secret: strings.TrimSpace(c.GetHeader(headerCronSecret))}
		if actor, err := s.actorFromBearer(c); err == nil {
			req.ActorID = &actor
		} else if req.Secret == "" {
			req.Secret, _ = bearerToken(c)
		}

		result := s.authzSvc.RequireCronOrAdmin(c.Request.Context(), req)
		if !result.Allowed {
			AbortWithError(c, result.Err)
			return
		}
		s.log.Debug("cron request admitted", zap.String("via", result.Via), zap.String("route", c.FullPath()))
		if req.ActorID != nil {
			c.Set(contextActorIDKey, *req.ActorID)
		}
		c.Next()
	}
}
