package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/errorx"
	"github.com/amoylab/webconsole/internal/console/session"
)

const userKey = "webconsole.user"

// loggerMiddleware logs incoming requests and outgoing responses
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.logger.Debug("incoming request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)

		c.Next()

		s.logger.Debug("outgoing response",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
		)
	}
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
				)
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorx.ErrInternalServer})
				}
			}
		}()
		c.Next()
	}
}

// userMiddleware binds the request to the user session named by the
// session cookie, creating one when the cookie is missing or belongs to
// another principal.
func (s *Server) userMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.console.Auth.Resolve(c.Request)
		if err != nil {
			s.errs.HandleError(c, err)
			return
		}

		id, _ := c.Cookie(s.cfg.Session.Cookie)
		if id == "" {
			id = uuid.NewString()
		}
		user, created := s.console.Users.GetOrCreate(id)
		if !created && user.Principal().Name != p.Name {
			id = uuid.NewString()
			user, created = s.console.Users.GetOrCreate(id)
		}
		if created {
			user.SetLocale(s.console.I18n.FromRequest(c.Request))
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(s.cfg.Session.Cookie, id, 0, s.cfg.Prefix, "", c.Request.TLS != nil, true)
		}
		user.SetPrincipal(p)
		user.Touch()
		c.Set(userKey, user)
		c.Next()
	}
}

func userFrom(c *gin.Context) *session.UserSession {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*session.UserSession)
	return user
}
