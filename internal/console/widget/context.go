package widget

import (
	"golang.org/x/text/language"

	"github.com/amoylab/webconsole/internal/console/auth"
	"github.com/amoylab/webconsole/internal/console/i18n"
	"github.com/amoylab/webconsole/internal/console/session"
)

// Context is what a widget knows about the browser tab it serves.
type Context struct {
	Conn   *session.Connection
	Locale language.Tag
	Prefix string

	tr *i18n.I18n
}

// NewContext creates the context of conn. The locale is the user's choice,
// the translator's default otherwise.
func NewContext(conn *session.Connection, tr *i18n.I18n, prefix string) *Context {
	rc := &Context{Conn: conn, Prefix: prefix, tr: tr}
	if conn != nil && conn.User() != nil {
		rc.Locale = conn.User().Locale()
	}
	if rc.Locale == language.Und && tr != nil {
		rc.Locale = tr.Default()
	}
	return rc
}

// Principal returns the current user.
func (c *Context) Principal() auth.Principal {
	if c.Conn == nil {
		return auth.Principal{}
	}
	return c.Conn.Principal()
}

// T translates msgID into the context's locale.
func (c *Context) T(msgID string, data ...map[string]any) string {
	if c.tr == nil {
		return msgID
	}
	var td map[string]any
	if len(data) > 0 {
		td = data[0]
	}
	return c.tr.Translate(msgID, c.Locale, td)
}
