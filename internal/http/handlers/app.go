package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chinasource/internal/config"
	"chinasource/internal/domain"
	applog "chinasource/internal/log"
	"chinasource/web"
)

// BodyLimit covers a full request form: every product with its images.
const BodyLimit = 64 << 20

// Options tunes the parts of the app that tests need to shrink.
type Options struct {
	// GlobalMax is the per-IP request budget per minute.
	GlobalMax int
	// LoginMax is the per-IP sign-in budget per ten minutes.
	LoginMax int
	// AccessLog enables the request logger middleware.
	AccessLog bool
}

func DefaultOptions() Options {
	return Options{GlobalMax: 120, LoginMax: 5, AccessLog: true}
}

// ErrorHandler logs and renders failures without leaking internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := genericError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		switch code {
		case fiber.StatusNotFound:
			msg = "Page not found"
		case fiber.StatusRequestEntityTooLarge:
			msg = "The upload is too large. Please choose fewer or smaller images."
		default:
			if code < 500 {
				msg = fe.Message
			}
		}
	}
	if code >= 500 {
		applog.Error(c, "server.error", err, nil)
	} else {
		applog.Warn(c, "request.error", err, nil)
	}
	if rerr := render(c.Status(code), "notfound", fiber.Map{"Message": msg}); rerr != nil {
		return c.Status(code).SendString(msg)
	}
	return nil
}

// RewriteSPAFallback turns the static-host fallback URL "/?/path&rest" back
// into "/path". Only the path survives, as in the client router; fragments
// never reach the server and stay with the browser across the redirect.
func RewriteSPAFallback(base string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := string(c.Request().URI().QueryString())
		if !strings.HasPrefix(q, "/") {
			return c.Next()
		}
		if p := strings.TrimSuffix(c.Path(), "/"); p != base {
			return c.Next()
		}
		spa := q
		if i := strings.IndexByte(spa, '&'); i >= 0 {
			spa = spa[:i]
		}
		spa = strings.ReplaceAll(spa, "~and~", "&")
		spa = "/" + strings.TrimLeft(strings.ReplaceAll(spa, "\\", "/"), "/")
		return c.Redirect(base+spa, fiber.StatusFound)
	}
}

func skipLimiter(base string) func(c *fiber.Ctx) bool {
	return func(c *fiber.Ctx) bool {
		p := strings.TrimPrefix(c.Path(), base)
		return strings.HasPrefix(p, "/static/") ||
			strings.HasPrefix(p, "/storage/") ||
			p == "/dashboard/notifications/stream" ||
			c.Path() == "/healthz" || c.Path() == "/metrics"
	}
}

func Home(c *fiber.Ctx) error {
	return render(c, "home", fiber.Map{"Services": domain.ServiceTypes})
}

// NewApp wires middleware and routes under cfg.BasePath.
func NewApp(cfg config.Config, d *Deps, views fiber.Views, opts Options) *fiber.App {
	base := cfg.BasePath
	app := fiber.New(fiber.Config{
		Views:        views,
		BodyLimit:    BodyLimit,
		ErrorHandler: ErrorHandler,
	})

	// ---------- Middlewares ----------
	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}
	app.Use(helmet.New(helmet.Config{
		// Product images may live on other origins.
		CrossOriginEmbedderPolicy: "unsafe-none",
	}))
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("base", base)
		return c.Next()
	})
	app.Use(RewriteSPAFallback(base))
	app.Use(limiter.New(limiter.Config{
		Max:        opts.GlobalMax,
		Expiration: time.Minute,
		Next:       skipLimiter(base),
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).SendString("Too many requests. Please slow down.")
		},
	}))
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "form:csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		ContextKey:     "csrf",
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics"
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"form": c.FormValue("csrf") != ""})
			if wantsJSON(c) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Security check failed. Please refresh and try again."})
			}
			return notFound(c, fiber.StatusForbidden, "Security check failed. Please refresh and try again.")
		},
	}))
	app.Use(func(c *fiber.Ctx) error {
		if tok, ok := c.Locals("csrf").(string); ok {
			c.Locals("CSRFToken", tok)
		}
		return c.Next()
	})
	app.Use(AttachUser(d.Auth, d.Admins))

	// Health & metrics live at the root regardless of the base path.
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	var r fiber.Router = app
	if base != "" {
		r = app.Group(base)
	}

	// ---------- Static assets & storage ----------
	r.Use("/static", filesystem.New(filesystem.Config{Root: web.Static(), MaxAge: 3600}))
	r.Get("/storage/:bucket/*", d.StorageHandler.Serve)

	// ---------- Public pages ----------
	r.Get("/", Home)
	r.Get("/start", Start)

	authH := d.AuthHandler
	r.Get("/login", authH.LoginForm)
	r.Post("/login", limiter.New(limiter.Config{
		Max:        opts.LoginMax,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return render(c.Status(fiber.StatusTooManyRequests), "login", fiber.Map{"Tab": "signin", "Err": "Too many attempts. Please try again later."})
		},
	}), authH.Login)
	r.Post("/signup", limiter.New(limiter.Config{
		Max:        5,
		Expiration: time.Hour,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.signup.hit", nil)
			return render(c.Status(fiber.StatusTooManyRequests), "login", fiber.Map{"Tab": "signup", "Err": "Too many attempts. Please try again later."})
		},
	}), authH.SignUp)
	r.Post("/logout", authH.Logout)
	r.Get("/forgot", authH.ForgotForm)
	r.Post("/forgot", limiter.New(limiter.Config{
		Max:        3,
		Expiration: 15 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.forgot.hit", nil)
			return render(c.Status(fiber.StatusTooManyRequests), "forgot", fiber.Map{"Err": "Too many requests. Please try again later."})
		},
	}), authH.Forgot)
	r.Get("/reset", authH.ResetForm)
	r.Post("/reset", authH.Reset)
	r.Post("/auth/session", limiter.New(limiter.Config{
		Max:        10,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|session"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.session.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}), authH.Session)
	r.Get("/auth/confirm", authH.Confirm)

	// ---------- Customer dashboard ----------
	dashH := d.DashboardHandler
	dash := r.Group("/dashboard", RequireUser())
	dash.Get("/", dashH.Show)
	dash.Post("/offers", dashH.Submit)
	dash.Get("/offers/:id", dashH.Offer)
	dash.Post("/settings", dashH.Settings)
	dash.Post("/notifications/:id/read", dashH.MarkRead)
	dash.Get("/notifications/stream", dashH.Stream)

	// ---------- Admin ----------
	adminH := d.AdminHandler
	admin := r.Group("/admin", RequireAdmin())
	admin.Get("/", adminH.Dashboard)
	admin.Post("/offers/:id/status", adminH.SaveStatus)
	admin.Post("/offers/:offerID/products/:productID", adminH.SaveProduct)
	admin.Get("/customers/:id/offers/new", adminH.NewOffer)
	admin.Post("/customers/:id/offers", adminH.CreateOffer)

	// ---------- 404 ----------
	app.Use(func(c *fiber.Ctx) error {
		return notFound(c, fiber.StatusNotFound, "Page not found")
	})
	return app
}
