package handlers

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"chinasource/internal/domain"
)

const flashCookie = "flash"

type Flash struct {
	Kind    string
	Message string
}

// setFlash stores a one-shot message shown by the next rendered page.
func setFlash(c *fiber.Ctx, kind, message string) {
	c.Cookie(&fiber.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + "|" + message),
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func takeFlash(c *fiber.Ctx) *Flash {
	raw := c.Cookies(flashCookie)
	if raw == "" {
		return nil
	}
	c.Cookie(&fiber.Cookie{
		Name:     flashCookie,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(-time.Hour),
	})
	v, err := url.QueryUnescape(raw)
	if err != nil {
		return nil
	}
	kind, msg, ok := strings.Cut(v, "|")
	if !ok || msg == "" {
		return nil
	}
	return &Flash{Kind: kind, Message: msg}
}

func csrfToken(c *fiber.Ctx) string {
	if tok, _ := c.Locals("CSRFToken").(string); tok != "" {
		return tok
	}
	// Fallback: the middleware may not have run for this route.
	return c.Cookies("csrf_")
}

func render(c *fiber.Ctx, tmpl string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	data["Base"], _ = c.Locals("base").(string)
	if u, ok := c.Locals("user").(*domain.User); ok && u != nil {
		data["User"] = u
		data["IsAdmin"], _ = c.Locals("isAdmin").(bool)
	}
	if _, ok := data["Flash"]; !ok {
		if f := takeFlash(c); f != nil {
			data["Flash"] = f
		}
	}
	data["CSRFToken"] = csrfToken(c)
	return c.Render(tmpl, data)
}

// notFound renders the shared error page.
func notFound(c *fiber.Ctx, status int, message string) error {
	return render(c.Status(status), "notfound", fiber.Map{"Message": message})
}
