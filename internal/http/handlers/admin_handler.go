package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"chinasource/internal/domain"
	"chinasource/internal/forms"
	applog "chinasource/internal/log"
	"chinasource/internal/services"
)

type AdminHandler struct {
	Admin *services.AdminService
}

// GET /admin
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if c.Query("tab") == "customers" {
		customers, err := h.Admin.ListCustomers(ctx)
		if err != nil {
			applog.Error(c, "admin.customers.list.fail", err, nil)
			return notFound(c, fiber.StatusInternalServerError, "Could not load customers")
		}
		return render(c, "admin", fiber.Map{"Title": "Admin", "Tab": "customers", "Customers": customers})
	}

	offers, err := h.Admin.ListOffers(ctx)
	if err != nil {
		applog.Error(c, "admin.offers.list.fail", err, nil)
		return notFound(c, fiber.StatusInternalServerError, "Could not load offers")
	}
	f := domain.OfferFilter{
		Category: domain.OfferCategory(c.Query("category", string(domain.CategoryAll))),
		Status:   c.Query("status", "all"),
		Search:   strings.TrimSpace(c.Query("q")),
	}
	return render(c, "admin", fiber.Map{
		"Title":         "Admin",
		"Tab":           "offers",
		"Offers":        domain.FilterOffers(offers, f),
		"Total":         len(offers),
		"Statuses":      domain.DistinctStatuses(offers),
		"AdminStatuses": domain.AdminStatuses,
		"Category":      string(f.Category),
		"Status":        f.Status,
		"Q":             f.Search,
	})
}

// POST /admin/offers/:id/status
func (h *AdminHandler) SaveStatus(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	current := c.FormValue("current")
	o, err := h.Admin.SaveStatus(c.UserContext(), id, c.FormValue("status"), current)
	back := link(c, "/admin#offer-"+id)
	switch {
	case errors.Is(err, services.ErrStatusUnchanged):
		setFlash(c, "info", dataMessage(err))
		return c.Redirect(back)
	case err != nil:
		applog.Error(c, "admin.offers.status.fail", err, map[string]any{"offer_id": id})
		setFlash(c, "error", dataMessage(err))
		return c.Redirect(back)
	}
	applog.Audit(c, "admin.offers.status", map[string]any{"offer_id": id, "from": current, "to": o.Status})
	setFlash(c, "success", "Status updated to "+domain.StatusLabel(o.Status)+".")
	return c.Redirect(back)
}

// POST /admin/offers/:offerID/products/:productID
func (h *AdminHandler) SaveProduct(c *fiber.Ctx) error {
	offerID, err := idParam(c, "offerID")
	if err != nil {
		return err
	}
	productID, err := idParam(c, "productID")
	if err != nil {
		return err
	}
	fields := forms.ParseProductFields(func(k string) string { return c.FormValue(k) })
	back := link(c, "/admin#offer-"+offerID)
	if err := h.Admin.SaveProduct(c.UserContext(), offerID, productID, fields); err != nil {
		applog.Error(c, "admin.products.update.fail", err, map[string]any{"offer_id": offerID, "product_id": productID})
		setFlash(c, "error", dataMessage(err))
		return c.Redirect(back)
	}
	applog.Audit(c, "admin.products.update", map[string]any{"offer_id": offerID, "product_id": productID})
	setFlash(c, "success", "Product details saved.")
	return c.Redirect(back)
}

func (h *AdminHandler) newOfferPage(c *fiber.Ctx, customer *domain.Customer, form *forms.OfferForm, errMsg string, attach ...string) error {
	products, err := h.Admin.CustomerProducts(c.UserContext(), customer.ID)
	if err != nil {
		return err
	}
	form.AttachProducts(products, attach)
	return render(c, "admin_new_offer", fiber.Map{
		"Title":        "New offer",
		"Customer":     customer,
		"Products":     products,
		"Form":         form,
		"Attached":     attach,
		"DefaultCount": forms.DefaultAdminCount,
		"ServiceTypes": domain.ServiceTypes,
		"Err":          errMsg,
	})
}

func (h *AdminHandler) customer(c *fiber.Ctx) (*domain.Customer, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	customer, err := h.Admin.Customer(c.UserContext(), id)
	if errors.Is(err, services.ErrNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Customer not found")
	}
	return customer, err
}

// GET /admin/customers/:id/offers/new?attach=<product id>...
func (h *AdminHandler) NewOffer(c *fiber.Ctx) error {
	customer, err := h.customer(c)
	if err != nil {
		return err
	}
	var attach []string
	for _, v := range c.Context().QueryArgs().PeekMulti("attach") {
		if id := strings.TrimSpace(string(v)); id != "" {
			attach = append(attach, id)
		}
	}
	return h.newOfferPage(c, customer, forms.NewOfferForm(), "", attach...)
}

// POST /admin/customers/:id/offers
func (h *AdminHandler) CreateOffer(c *fiber.Ctx) error {
	customer, err := h.customer(c)
	if err != nil {
		return err
	}
	values, files := formValues(c)
	form, warnings := forms.ParseOfferForm(values, files)

	offer, err := h.Admin.CreateOfferForCustomer(c.UserContext(), currentUser(c).ID, *customer, form)
	if err != nil {
		var ve *forms.ValidationError
		if errors.As(err, &ve) {
			return h.newOfferPage(c.Status(fiber.StatusUnprocessableEntity), customer, form, ve.Error())
		}
		fields := map[string]any{"customer_id": customer.ID}
		if offer == nil {
			applog.Error(c, "admin.offers.create.fail", err, fields)
			return h.newOfferPage(c.Status(fiber.StatusInternalServerError), customer, form, dataMessage(err))
		}
		fields["offer_id"] = offer.ID
		applog.Error(c, "admin.offers.create.partial", err, fields)
		setFlash(c, "error", "The offer was created, but not every row could be saved. "+dataMessage(err))
		return c.Redirect(link(c, "/admin#offer-"+offer.ID))
	}

	applog.Audit(c, "admin.offers.create", map[string]any{"offer_id": offer.ID, "customer_id": customer.ID, "rows": len(form.Rows)})
	kind, msg := "success", "Offer created for "+customer.Name+"."
	if len(warnings) > 0 {
		kind, msg = "warning", msg+" "+strings.Join(warnings, " ")
	}
	setFlash(c, kind, msg)
	return c.Redirect(link(c, "/admin#offer-"+offer.ID))
}
