package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"chinasource/internal/domain"
	"chinasource/internal/log"
	"chinasource/internal/services"
	"chinasource/internal/validate"
)

const rememberFor = 30 * 24 * time.Hour

type AuthHandler struct {
	Auth    *services.AuthService
	Streams *Streams
}

// setSID installs the session cookie. Remembered sessions outlive the
// browser; the others end with it.
func setSID(c *fiber.Ctx, sid string, remember bool) {
	ck := &fiber.Cookie{
		Name:     sidCookie,
		Value:    sid,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   c.Protocol() == "https",
	}
	if remember {
		ck.Expires = time.Now().Add(rememberFor)
	}
	c.Cookie(ck)
}

func clearSID(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sidCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(-1 * time.Hour),
	})
}

// dropSession ends the session behind the current cookie, if any, and closes
// its live notification streams.
func (h *AuthHandler) dropSession(c *fiber.Ctx) string {
	sid := c.Cookies(sidCookie)
	if sid == "" {
		return ""
	}
	if err := h.Auth.Logout(c.UserContext(), sid); err != nil {
		log.Warn(c, "auth.logout.unbind", err, nil)
	}
	h.Streams.Close(sid)
	return sid
}

func loginTab(tab string) string {
	if tab == "signup" {
		return "signup"
	}
	return "signin"
}

// LoginForm skips straight to the dashboard only for remembered sessions.
func (h *AuthHandler) LoginForm(c *fiber.Ctx) error {
	if sess := currentSession(c); currentUser(c) != nil && sess != nil && sess.Remember {
		return c.Redirect(link(c, "/dashboard"))
	}
	return render(c, "login", fiber.Map{"Title": "Sign in", "Tab": loginTab(c.Query("tab"))})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	pass := c.FormValue("password")
	remember := c.FormValue("remember") != ""
	data := fiber.Map{"Title": "Sign in", "Tab": "signin", "Email": email}

	if _, ok := validate.Email(email); !ok || pass == "" {
		log.Security(c, "auth.login.fail", map[string]any{"email": email, "reason": "bad_format"})
		data["Err"] = authMessage(services.ErrInvalidCredentials)
		return render(c.Status(fiber.StatusUnauthorized), "login", data)
	}

	sid := uuid.NewString()
	u, err := h.Auth.Login(c.UserContext(), sid, email, pass, remember)
	if err != nil {
		reason := "credentials"
		if errors.Is(err, services.ErrEmailNotConfirmed) {
			reason = "unconfirmed"
		} else if !errors.Is(err, services.ErrInvalidCredentials) {
			log.Error(c, "auth.login.error", err, nil)
			reason = "error"
		}
		log.Security(c, "auth.login.fail", map[string]any{"email": email, "reason": reason})
		data["Err"] = authMessage(err)
		return render(c.Status(fiber.StatusUnauthorized), "login", data)
	}

	h.dropSession(c)
	setSID(c, sid, remember)
	c.Locals("userID", u.ID)
	log.Audit(c, "auth.login.success", map[string]any{"email": u.Email, "remember": remember})
	return c.Redirect(link(c, "/dashboard"))
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	in := services.SignUp{
		Name:     c.FormValue("name"),
		Email:    c.FormValue("email"),
		Phone:    c.FormValue("phone"),
		Password: c.FormValue("password"),
		Confirm:  c.FormValue("confirm"),
	}
	data := fiber.Map{"Title": "Sign up", "Tab": "signup", "Name": in.Name, "Email": in.Email, "Phone": in.Phone}

	u, err := h.Auth.Register(c.UserContext(), in)
	if err != nil {
		msg := authMessage(err)
		if msg == genericError {
			log.Error(c, "auth.signup.error", err, nil)
		} else {
			log.Warn(c, "auth.signup.rejected", err, map[string]any{"email": in.Email})
		}
		data["Err"] = msg
		return render(c.Status(fiber.StatusUnprocessableEntity), "login", data)
	}
	c.Locals("userID", u.ID)
	log.Audit(c, "auth.signup", map[string]any{"email": u.Email, "confirmed": u.EmailConfirmed})

	if u.EmailConfirmed {
		sid := uuid.NewString()
		if _, err := h.Auth.Login(c.UserContext(), sid, u.Email, in.Password, false); err == nil {
			h.dropSession(c)
			setSID(c, sid, false)
			return c.Redirect(link(c, "/dashboard"))
		}
	}
	return render(c, "login", fiber.Map{
		"Title": "Sign in",
		"Tab":   "signin",
		"Email": u.Email,
		"Info":  "Account created. Check your inbox to confirm your email address, then sign in.",
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sid := h.dropSession(c)
	clearSID(c)
	log.Audit(c, "auth.logout", map[string]any{"sid": sid})
	return c.Redirect(link(c, "/"))
}

func (h *AuthHandler) ForgotForm(c *fiber.Ctx) error {
	return render(c, "forgot", fiber.Map{"Title": "Reset password"})
}

func (h *AuthHandler) Forgot(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	data := fiber.Map{"Title": "Reset password", "Email": email}
	if err := h.Auth.RequestPasswordReset(c.UserContext(), email); err != nil {
		if errors.Is(err, services.ErrInvalidEmail) {
			data["Err"] = authMessage(err)
			return render(c.Status(fiber.StatusUnprocessableEntity), "forgot", data)
		}
		log.Error(c, "auth.reset.request", err, nil)
		data["Err"] = genericError
		return render(c.Status(fiber.StatusInternalServerError), "forgot", data)
	}
	log.Audit(c, "auth.reset.requested", nil)
	data["Info"] = "If an account exists for that address, a reset link is on its way."
	return render(c, "forgot", data)
}

func recoverySession(c *fiber.Ctx) bool {
	sess, _ := c.Locals("session").(*domain.Session)
	return sess != nil && sess.Recovery
}

func (h *AuthHandler) ResetForm(c *fiber.Ctx) error {
	return render(c, "reset", fiber.Map{"Title": "New password", "Recovery": recoverySession(c)})
}

func (h *AuthHandler) Reset(c *fiber.Ctx) error {
	sid := c.Cookies(sidCookie)
	u, err := h.Auth.ResetPassword(c.UserContext(), sid, c.FormValue("password"), c.FormValue("confirm"))
	if err != nil {
		data := fiber.Map{"Title": "New password", "Recovery": !errors.Is(err, services.ErrInvalidRecovery), "Err": authMessage(err)}
		if errors.Is(err, services.ErrInvalidRecovery) {
			log.Security(c, "auth.reset.invalid_session", nil)
		} else if authMessage(err) == genericError {
			log.Error(c, "auth.reset.error", err, nil)
		}
		return render(c.Status(fiber.StatusUnprocessableEntity), "reset", data)
	}
	c.Locals("userID", u.ID)
	log.Audit(c, "auth.password.reset", map[string]any{"email": u.Email})
	setFlash(c, "success", "Your password has been updated.")
	return c.Redirect(link(c, "/dashboard"))
}

// Session exchanges the recovery token delivered in a URL fragment for a
// recovery sid cookie. Provider errors in the fragment are logged and echoed
// back.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	if e := c.FormValue("error"); e != "" {
		desc := c.FormValue("error_description")
		log.Security(c, "auth.oauth.error", map[string]any{"error": e, "description": desc})
		if desc == "" {
			desc = e
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": desc})
	}
	token := c.FormValue("access_token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": authMessage(services.ErrInvalidToken)})
	}

	sid := uuid.NewString()
	u, sess, err := h.Auth.EstablishSession(c.UserContext(), sid, token)
	if err != nil {
		log.Security(c, "auth.session.rejected", map[string]any{"type": c.FormValue("type")})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": authMessage(services.ErrInvalidToken)})
	}
	h.dropSession(c)
	setSID(c, sid, false)
	c.Locals("userID", u.ID)
	log.Audit(c, "auth.session.established", map[string]any{"recovery": sess.Recovery})
	return c.JSON(fiber.Map{"redirect": link(c, "/reset")})
}

// Confirm completes the mailed email confirmation link.
func (h *AuthHandler) Confirm(c *fiber.Ctx) error {
	u, err := h.Auth.Confirm(c.UserContext(), c.Query("token"))
	if err != nil {
		log.Security(c, "auth.confirm.rejected", nil)
		setFlash(c, "error", authMessage(services.ErrInvalidToken))
		return c.Redirect(link(c, "/login"))
	}
	log.Audit(c, "auth.confirm", map[string]any{"email": u.Email})
	setFlash(c, "success", "Email confirmed. You can sign in now.")
	return c.Redirect(link(c, "/login"))
}
