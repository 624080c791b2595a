package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bookshelf-service/bookshelf/internal/model"
)

const (
	sessionCookieName = "session"
	principalKey      = "principal"
)

// resolveSession rehydrates the principal from the session cookie. Requests
// without a valid session proceed anonymously.
func (h *Handler) resolveSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			return next(c)
		}
		user, err := h.authSvc.UserFromToken(c.Request().Context(), cookie.Value)
		if err != nil {
			clearSessionCookie(c)
			return next(c)
		}
		c.Set(principalKey, user)
		return next(c)
	}
}

func principal(c echo.Context) (model.User, bool) {
	u, ok := c.Get(principalKey).(model.User)
	return u, ok
}

// roleAllowed is a pure membership check over the allow-set.
func roleAllowed(u model.User, roles ...int) bool {
	for _, r := range roles {
		if u.RoleID == r {
			return true
		}
	}
	return false
}

func (h *Handler) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := principal(c); !ok {
			addFlash(c, flashWarning, "Authentication is required to access this page.")
			return c.Redirect(http.StatusSeeOther, "/login")
		}
		return next(c)
	}
}

// requireRoles gates an operation before its body runs. It implies requireAuth.
func (h *Handler) requireRoles(roles ...int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := principal(c)
			if !ok {
				addFlash(c, flashWarning, "Authentication is required to access this page.")
				return c.Redirect(http.StatusSeeOther, "/login")
			}
			if !roleAllowed(u, roles...) {
				addFlash(c, flashWarning, "You do not have enough privileges.")
				return c.Redirect(http.StatusSeeOther, "/")
			}
			return next(c)
		}
	}
}

func setSessionCookie(c echo.Context, token string, expires time.Time, remember bool) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	// a non-remembered session cookie dies with the browser session
	if remember {
		cookie.Expires = expires
	}
	c.SetCookie(cookie)
}

func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
