package handlers

import (
	"bufio"
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"chinasource/internal/domain"
	"chinasource/internal/forms"
	"chinasource/internal/log"
	"chinasource/internal/services"
)

const (
	recentOffers  = 5
	phoneRequired = "Please add your phone number before requesting products."
)

var bucketHeadings = map[string]string{
	string(domain.BucketPending):  "Pending offers",
	string(domain.BucketReady):    "Ready offers",
	string(domain.BucketAccepted): "Accepted offers",
	string(domain.BucketRejected): "Rejected offers",
}

type DashboardHandler struct {
	Offers    *services.OfferService
	Notes     *services.NotificationService
	Auth      *services.AuthService
	Streams   *Streams
	Heartbeat time.Duration
}

func dashboardTab(tab string) string {
	switch tab {
	case "new", "settings":
		return tab
	}
	if _, ok := bucketHeadings[tab]; ok {
		return tab
	}
	return "overview"
}

// formValues reads a multipart body when there is one, otherwise the
// urlencoded fields.
func formValues(c *fiber.Ctx) (map[string][]string, map[string][]*multipart.FileHeader) {
	if mf, err := c.MultipartForm(); err == nil {
		return mf.Value, mf.File
	}
	values := map[string][]string{}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		values[string(k)] = append(values[string(k)], string(v))
	})
	return values, nil
}

func (h *DashboardHandler) page(c *fiber.Ctx, tab string, extra fiber.Map) error {
	ctx := c.UserContext()
	u := currentUser(c)
	customer, err := h.Offers.Customer(ctx, u.ID)
	if err != nil {
		return err
	}
	offers, err := h.Offers.ListForCustomer(ctx, u.ID)
	if err != nil {
		return err
	}
	feed, err := h.Notes.List(ctx, u.ID)
	if err != nil {
		return err
	}

	groups := domain.GroupByBucket(offers)
	counts := make(map[string]int, len(groups))
	for b, list := range groups {
		counts[string(b)] = len(list)
	}
	data := fiber.Map{
		"Title":        "Dashboard",
		"Tab":          tab,
		"Customer":     customer,
		"Counts":       counts,
		"Feed":         feed,
		"ServiceTypes": domain.ServiceTypes,
	}
	switch tab {
	case "overview":
		if len(offers) > recentOffers {
			offers = offers[:recentOffers]
		}
		data["Offers"] = offers
	case "new":
		data["Form"] = forms.NewCustomerForm()
	case "settings":
	default:
		data["Offers"] = groups[domain.Bucket(tab)]
		data["Heading"] = bucketHeadings[tab]
	}
	for k, v := range extra {
		data[k] = v
	}
	return render(c, "dashboard", data)
}

func (h *DashboardHandler) Show(c *fiber.Ctx) error {
	tab := dashboardTab(c.Query("tab"))
	if tab == "new" {
		customer, err := h.Offers.Customer(c.UserContext(), currentUser(c).ID)
		if err != nil {
			return err
		}
		if !customer.HasPhone() {
			setFlash(c, "warning", phoneRequired)
			return c.Redirect(link(c, "/dashboard?tab=settings"))
		}
	}
	return h.page(c, tab, nil)
}

// Submit stores a customer request. Validation failures re-render the form
// with the typed values; selected files have to be picked again.
func (h *DashboardHandler) Submit(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u := currentUser(c)
	customer, err := h.Offers.Customer(ctx, u.ID)
	if err != nil {
		return err
	}
	if !customer.HasPhone() {
		setFlash(c, "warning", phoneRequired)
		return c.Redirect(link(c, "/dashboard?tab=settings"))
	}

	values, files := formValues(c)
	form, warnings := forms.ParseProductForm(values, files)
	offer, err := h.Offers.Submit(ctx, *customer, u.ID, form)
	if err != nil {
		var ve *forms.ValidationError
		if errors.As(err, &ve) {
			log.Warn(c, "offer.submit.invalid", err, map[string]any{"entry": ve.Index, "field": ve.Field})
			return h.page(c.Status(fiber.StatusUnprocessableEntity), "new", fiber.Map{"Form": form, "Err": ve.Error()})
		}
		fields := map[string]any{}
		if offer != nil {
			fields["offer_id"] = offer.ID
		}
		log.Error(c, "offer.submit", err, fields)
		setFlash(c, "error", dataMessage(err))
		return c.Redirect(link(c, "/dashboard?tab=new"))
	}

	log.Audit(c, "offer.submit", map[string]any{"offer_id": offer.ID, "products": len(form.Entries)})
	kind, msg := "success", "Your request has been received. We will prepare your offer shortly."
	if len(warnings) > 0 {
		kind, msg = "warning", msg+" "+strings.Join(warnings, " ")
	}
	setFlash(c, kind, msg)
	return c.Redirect(link(c, "/dashboard?tab=pending"))
}

func (h *DashboardHandler) Offer(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	offer, err := h.Offers.GetForCustomer(c.UserContext(), currentUser(c).ID, id)
	if errors.Is(err, services.ErrNotFound) {
		log.Security(c, "offer.view.denied", map[string]any{"offer_id": id})
		return notFound(c, fiber.StatusNotFound, "This offer could not be found.")
	}
	if err != nil {
		return err
	}
	return render(c, "offer", fiber.Map{"Title": offer.Title, "Offer": offer})
}

func (h *DashboardHandler) Settings(c *fiber.Ctx) error {
	u := currentUser(c)
	_, phone, err := h.Auth.UpdateProfile(c.UserContext(), u.ID, c.FormValue("name"), c.FormValue("phone"))
	if err != nil {
		msg := authMessage(err)
		if msg == genericError {
			log.Error(c, "profile.update", err, nil)
		}
		setFlash(c, "error", msg)
		return c.Redirect(link(c, "/dashboard?tab=settings"))
	}
	log.Audit(c, "profile.update", map[string]any{"phone": phone})
	setFlash(c, "success", "Your profile has been saved.")
	return c.Redirect(link(c, "/dashboard?tab=settings"))
}

func wantsJSON(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}

func (h *DashboardHandler) MarkRead(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u := currentUser(c)
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.Notes.MarkRead(ctx, u.ID, id); err != nil {
		status, msg := fiber.StatusInternalServerError, genericError
		if errors.Is(err, services.ErrNotFound) {
			status, msg = fiber.StatusNotFound, dataMessage(err)
			log.Security(c, "notification.read.denied", map[string]any{"notification_id": id})
		} else {
			log.Error(c, "notification.read", err, map[string]any{"notification_id": id})
		}
		if wantsJSON(c) {
			return c.Status(status).JSON(fiber.Map{"error": msg})
		}
		setFlash(c, "error", msg)
		return c.Redirect(link(c, "/dashboard"))
	}
	if wantsJSON(c) {
		feed, err := h.Notes.List(ctx, u.ID)
		if err != nil {
			return c.JSON(fiber.Map{"ok": true})
		}
		return c.JSON(fiber.Map{"ok": true, "unread": feed.UnreadCount()})
	}
	return c.Redirect(link(c, "/dashboard"))
}

// Stream is the server-sent event feed of the signed-in customer's
// notifications. It ends when the client goes away or the session signs out.
func (h *DashboardHandler) Stream(c *fiber.Ctx) error {
	u := currentUser(c)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.Notes.Subscribe(ctx, u.ID)
	if err != nil {
		cancel()
		log.Error(c, "notifications.stream.subscribe", err, nil)
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	release := h.Streams.add(c.Cookies(sidCookie), cancel)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	s := &feedStream{
		notes:      h.Notes,
		sub:        sub,
		customerID: u.ID,
		heartbeat:  h.Heartbeat,
		log:        log.L(),
	}
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer release()
		defer sub.Close()
		defer cancel()
		s.run(ctx, w)
	}))
	return nil
}
