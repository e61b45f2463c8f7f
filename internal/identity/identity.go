package identity

import "github.com/labstack/echo/v4"

// Identity is the authenticated caller as asserted by the corporate IdP
// token. UserID is the stable subject; Domain is extracted from the
// verified email claim.
type Identity struct {
	UserID string
	Email  string
	Domain string
}

const contextKey = "identity"

func ToContext(c echo.Context, id Identity) {
	c.Set(contextKey, id)
}

func FromContext(c echo.Context) (Identity, bool) {
	id, ok := c.Get(contextKey).(Identity)
	return id, ok
}
