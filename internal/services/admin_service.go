package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chinasource/internal/domain"
	"chinasource/internal/forms"
	"chinasource/internal/metrics"
	"chinasource/internal/repos"
	"chinasource/internal/storage"
)

type AdminService struct {
	Store         OfferStore
	Bucket        storage.Bucket
	Resolver      ImageResolver
	Notifications *NotificationService
	Metrics       metrics.Offers
	Log           *zap.Logger
	now           func() time.Time
}

func NewAdminService(store OfferStore, bucket storage.Bucket, ttl time.Duration, notes *NotificationService, m metrics.Offers, log *zap.Logger) *AdminService {
	return &AdminService{
		Store:         store,
		Bucket:        bucket,
		Resolver:      ImageResolver{Bucket: bucket, TTL: ttl, Log: log},
		Notifications: notes,
		Metrics:       m,
		Log:           log,
		now:           time.Now,
	}
}

func notFoundAs(err error) error {
	if errors.Is(err, repos.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// ListOffers returns every offer, newest first, with owner fields filled from
// the customer row where the offer's snapshot is empty.
func (s *AdminService) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	offers, err := s.Store.Offers.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(offers))
	seen := map[string]bool{}
	for _, o := range offers {
		if !seen[o.CustomerID] {
			seen[o.CustomerID] = true
			ids = append(ids, o.CustomerID)
		}
	}
	customers, err := s.Store.Customers.ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range offers {
		c, ok := customers[offers[i].CustomerID]
		if !ok {
			continue
		}
		if offers[i].OwnerName == "" {
			offers[i].OwnerName = c.Name
		}
		if offers[i].OwnerEmail == "" {
			offers[i].OwnerEmail = c.Email
		}
		if offers[i].OwnerPhone == "" {
			offers[i].OwnerPhone = c.Phone
		}
	}
	s.Resolver.Offers(offers)
	return offers, nil
}

// SaveStatus commits a staged status. It issues exactly one update and
// refuses a draft equal to the fetched value.
func (s *AdminService) SaveStatus(ctx context.Context, offerID, draft, current string) (*domain.Offer, error) {
	drafts := domain.NewStatusDrafts([]domain.Offer{{ID: offerID, Status: strings.TrimSpace(current)}})
	if draft = strings.TrimSpace(draft); draft != "" {
		drafts.Stage(offerID, draft)
	}
	if !drafts.CanSave(offerID) {
		return nil, ErrStatusUnchanged
	}
	o, err := s.Store.Offers.ByID(ctx, offerID)
	if err != nil {
		return nil, notFoundAs(err)
	}
	if err := s.Store.Offers.UpdateStatus(ctx, offerID, draft); err != nil {
		return nil, notFoundAs(err)
	}
	o.Status = draft
	s.Metrics.IncStatusChange(draft)

	if s.Notifications != nil {
		title := "Offer status updated"
		msg := fmt.Sprintf("%s is now %s.", offerLabel(o), domain.StatusLabel(draft))
		if _, err := s.Notifications.Notify(ctx, o.CustomerID, o.ID, title, msg, statusNotificationType(draft)); err != nil {
			s.Log.Warn("admin: status notification failed", zap.String("offer_id", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

func offerLabel(o *domain.Offer) string {
	if o.Title != "" {
		return o.Title
	}
	return "Your offer"
}

func statusNotificationType(status string) domain.NotificationType {
	switch domain.BucketFor(status) {
	case domain.BucketReady, domain.BucketAccepted:
		return domain.NotifySuccess
	case domain.BucketRejected:
		return domain.NotifyWarning
	}
	if strings.EqualFold(strings.TrimSpace(status), domain.StatusCancelled) {
		return domain.NotifyWarning
	}
	return domain.NotifyInfo
}

// SaveProduct overwrites the measurement and pricing fields of a product of
// the given offer.
func (s *AdminService) SaveProduct(ctx context.Context, offerID, productID string, f domain.ProductFields) error {
	p, err := s.Store.Products.ByID(ctx, productID)
	if err != nil {
		return notFoundAs(err)
	}
	if p.OfferID != offerID {
		return ErrNotFound
	}
	return notFoundAs(s.Store.Products.UpdateFields(ctx, productID, f))
}

func (s *AdminService) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.Store.Customers.List(ctx)
}

func (s *AdminService) Customer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := s.Store.Customers.ByID(ctx, id)
	return c, notFoundAs(err)
}

// CustomerProducts lists a customer's earlier products with resolved images,
// for attaching to a new offer.
func (s *AdminService) CustomerProducts(ctx context.Context, customerID string) ([]domain.Product, error) {
	products, err := s.Store.Products.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Images.Attach(ctx, products); err != nil {
		return nil, err
	}
	s.Resolver.Products(products)
	return products, nil
}

// CreateOfferForCustomer creates a ready offer on the customer's behalf.
// Rows are processed in order and the first failing row stops the rest;
// earlier rows stay committed.
func (s *AdminService) CreateOfferForCustomer(ctx context.Context, adminID string, customer domain.Customer, form *forms.OfferForm) (*domain.Offer, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	offer := &domain.Offer{
		CustomerID: customer.ID,
		CreatedBy:  adminID,
		Title:      DefaultOfferTitle,
		OwnerName:  customer.Name,
		OwnerEmail: customer.Email,
		OwnerPhone: customer.Phone,
		Status:     domain.StatusReady,
		Currency:   domain.DefaultCurrency,
	}
	if err := s.Store.Offers.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	s.Metrics.IncOfferSubmitted(metrics.OriginAdmin)

	for i, row := range form.Rows {
		if row.Mode == forms.RowExisting {
			if err := s.moveProduct(ctx, customer.ID, offer.ID, i, row); err != nil {
				return offer, fmt.Errorf("row %d: %w", i+1, err)
			}
			continue
		}

		count := row.Entry.Quantity
		if count < 1 {
			count = forms.DefaultAdminCount
		}
		fields := row.Fields
		fields.Currency = domain.NormalizeCurrency(fields.Currency)

		p := &domain.Product{
			OfferID:     offer.ID,
			CustomerID:  customer.ID,
			Name:        strings.TrimSpace(row.Entry.Name),
			Explanation: row.Entry.Description,
			Count:       count,
			ServiceType: row.Entry.ServiceType,
			Position:    i,
			Fields:      fields,
		}
		if err := s.Store.Products.Create(ctx, p); err != nil {
			return offer, fmt.Errorf("row %d: %w", i+1, err)
		}
		s.Metrics.IncProductCreated(metrics.OriginAdmin)
		if err := s.linkStaged(ctx, customer.ID, p.ID, row.Entry.Files); err != nil {
			return offer, fmt.Errorf("row %d images: %w", i+1, err)
		}
	}
	return offer, nil
}

// moveProduct puts an earlier product of the customer onto offerID. Its
// stored count and fields are kept unless the row sets them.
func (s *AdminService) moveProduct(ctx context.Context, customerID, offerID string, position int, row forms.OfferRow) error {
	stored, err := s.Store.Products.ByID(ctx, row.ProductID)
	if err != nil {
		return notFoundAs(err)
	}
	if stored.CustomerID != customerID {
		return ErrNotFound
	}
	count := stored.Count
	if row.CountSet && row.Entry.Quantity > 0 {
		count = row.Entry.Quantity
	}
	fields := stored.Fields.Overlay(row.Fields)
	return notFoundAs(s.Store.Products.Reassign(ctx, stored.ID, customerID, offerID, position, count, fields))
}

// linkStaged uploads staged files one by one after any images the product
// already has. Failed uploads are skipped.
func (s *AdminService) linkStaged(ctx context.Context, customerID, productID string, files []forms.Upload) error {
	if len(files) == 0 {
		return nil
	}
	existing, err := s.Store.Images.CountByProduct(ctx, productID)
	if err != nil {
		return err
	}
	for k, f := range files {
		objectPath := storage.AdminUploadPath(customerID, productID, k, f.Name, s.now())
		if err := s.upload(ctx, objectPath, f); err != nil {
			s.Metrics.IncImageUpload(metrics.UploadSkipped)
			s.Log.Warn("admin: image upload skipped",
				zap.String("product_id", productID),
				zap.String("file", f.Name),
				zap.Error(err))
			continue
		}
		s.Metrics.IncImageUpload(metrics.UploadStored)
		if err := s.Store.Images.Insert(ctx, &domain.ProductImage{
			ProductID:  productID,
			CustomerID: customerID,
			Path:       objectPath,
			SortOrder:  existing + k,
			Source:     domain.SourceUpload,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *AdminService) upload(ctx context.Context, objectPath string, f forms.Upload) error {
	if f.Open == nil {
		return fmt.Errorf("%s: no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.Bucket.Upload(ctx, objectPath, rc, f.ContentType)
}
