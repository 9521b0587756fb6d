package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/errorx"
	"github.com/amoylab/webconsole/internal/console/auth"
	"github.com/amoylab/webconsole/internal/console/resource"
	"github.com/amoylab/webconsole/internal/console/session"
)

type shellConfig struct {
	Prefix    string `json:"prefix"`
	Token     string `json:"token"`
	Locale    string `json:"locale"`
	KeepAlive int64  `json:"keepAlive"`
}

type shellData struct {
	Title    string
	Locale   string
	ThemeCSS string
	PortalJS string
	Config   shellConfig
}

// handleShell serves the console page. Every load starts a new Connection.
func (s *Server) handleShell(c *gin.Context) {
	user := userFrom(c)
	conn, _ := s.console.Connect("", user)
	locale := user.Locale().String()

	data := shellData{
		Title:    s.cfg.Name,
		Locale:   locale,
		ThemeCSS: resource.URI(s.cfg.Prefix, resource.ThemeResource, "console.css"),
		PortalJS: resource.URI(s.cfg.Prefix, resource.PortalResource, "console.js"),
		Config: shellConfig{
			Prefix:    s.cfg.Prefix,
			Token:     conn.Token(),
			Locale:    locale,
			KeepAlive: (s.cfg.Session.Timeout / 3).Milliseconds(),
		},
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := s.shell.ExecuteTemplate(c.Writer, "shell.html", data); err != nil {
		s.logger.Error("failed to render shell", zap.Error(err))
	}
}

// handleResource resolves the resources of one category.
func (s *Server) handleResource(category resource.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := userFrom(c)
		q := resource.Query{
			User:        user,
			Theme:       s.themeOf(user),
			HTTPRequest: c.Request,
			Writer:      c.Writer,
		}
		if ims := c.GetHeader("If-Modified-Since"); ims != "" {
			if t, err := http.ParseTime(ims); err == nil {
				q.IfModifiedSince = t
			}
		}

		res := s.console.Resolver.Resolve(c.Request.Context(), string(category)+c.Param("path"), q)
		if err := resource.Write(c.Writer, c.Request, res); err != nil {
			s.logger.Warn("failed to write resource",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
		}
	}
}

func (s *Server) themeOf(user *session.UserSession) string {
	if user != nil && user.Theme() != "" {
		return user.Theme()
	}
	return s.cfg.Theme.Default
}

// handleConnections lists the Connections of the console. Outside of
// anonymous mode it requires the admin role.
func (s *Server) handleConnections(c *gin.Context) {
	user := userFrom(c)
	if s.cfg.Auth.Type != "anonymous" && !user.Principal().HasRole(auth.RoleAdmin) {
		s.errs.HandleError(c, errorx.ErrForbidden)
		return
	}

	conns := s.console.Registry.AllForOwner(s.console.Name())
	infos := make([]session.Info, 0, len(conns))
	for _, conn := range conns {
		infos = append(infos, conn.Info())
	}
	c.JSON(http.StatusOK, gin.H{
		"connections": infos,
		"users":       s.console.Users.Len(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}
