package handlers

import (
	"github.com/gofiber/fiber/v2"

	"chinasource/internal/authz"
	"chinasource/internal/domain"
	applog "chinasource/internal/log"
	"chinasource/internal/services"
	"chinasource/internal/validate"
)

const sidCookie = "sid"

// link prefixes an application path with the mount base.
func link(c *fiber.Ctx, p string) string {
	b, _ := c.Locals("base").(string)
	return b + p
}

func currentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}

// idParam reads a route id. Malformed ids never reach a query.
func idParam(c *fiber.Ctx, name string) (string, error) {
	id, ok := validate.ID(c.Params(name))
	if !ok {
		applog.Security(c, "request.id.invalid", map[string]any{"param": name})
		return "", fiber.ErrNotFound
	}
	return id, nil
}

func currentSession(c *fiber.Ctx) *domain.Session {
	s, _ := c.Locals("session").(*domain.Session)
	return s
}

// AttachUser resolves the sid cookie for templates and guards. A recovery
// session only exposes itself under "session"; it does not sign the user in.
func AttachUser(auth *services.AuthService, admins authz.AllowList) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(sidCookie)
		if sid == "" {
			return c.Next()
		}
		u, sess, err := auth.CurrentUser(c.UserContext(), sid)
		if err != nil || u == nil {
			return c.Next()
		}
		c.Locals("session", sess)
		if !sess.Recovery {
			c.Locals("user", u)
			c.Locals("userID", u.ID)
			c.Locals("isAdmin", admins.IsAdmin(u.Email))
		}
		return c.Next()
	}
}

// RequireUser redirects anonymous visitors to the sign-in page.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == nil {
			return c.Redirect(link(c, "/login"))
		}
		return c.Next()
	}
}

// RequireAdmin sends signed-in non-admins back to their dashboard without
// telling them why.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := currentUser(c)
		if u == nil {
			return c.Redirect(link(c, "/login"))
		}
		if admin, _ := c.Locals("isAdmin").(bool); !admin {
			applog.Security(c, "access.denied.admin", map[string]any{"email": u.Email})
			return c.Redirect(link(c, "/dashboard"))
		}
		return c.Next()
	}
}

// Start is the landing call-to-action: dashboard when signed in, otherwise
// the sign-in page.
func Start(c *fiber.Ctx) error {
	if currentUser(c) != nil {
		return c.Redirect(link(c, "/dashboard"))
	}
	return c.Redirect(link(c, "/login"))
}
