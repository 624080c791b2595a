package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	flashCookieName = "flash"
	pendingFlashKey = "pendingFlashes"
)

const (
	flashSuccess = "success"
	flashWarning = "warning"
	flashDanger  = "danger"
)

// Flash is a one-shot message surfaced on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// addFlash queues a message. It is kept both in the request scope, so a page
// rendered by the same request shows it, and in a cookie, so it survives a
// redirect.
func addFlash(c echo.Context, category, message string) {
	pending, _ := c.Get(pendingFlashKey).([]Flash)
	pending = append(pending, Flash{Category: category, Message: message})
	c.Set(pendingFlashKey, pending)

	all := append(readFlashCookie(c), pending...)
	data, err := json.Marshal(all)
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookieName,
		Value:    base64.URLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
	})
}

// popFlashes drains pending messages and deletes the carrier cookie.
func popFlashes(c echo.Context) []Flash {
	flashes := append(readFlashCookie(c), mustPending(c)...)
	c.Set(pendingFlashKey, []Flash(nil))
	if len(flashes) != 0 {
		c.SetCookie(&http.Cookie{
			Name:     flashCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
	return flashes
}

func mustPending(c echo.Context) []Flash {
	pending, _ := c.Get(pendingFlashKey).([]Flash)
	return pending
}

func readFlashCookie(c echo.Context) []Flash {
	cookie, err := c.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	data, err := base64.URLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(data, &flashes); err != nil {
		return nil
	}
	return flashes
}
