package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chinasource/internal/domain"
	"chinasource/internal/forms"
	"chinasource/internal/metrics"
	"chinasource/internal/repos"
	"chinasource/internal/storage"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrStatusUnchanged = errors.New("status unchanged")
)

// DefaultOfferTitle is the title every new offer starts with.
const DefaultOfferTitle = "Yeni Teklif"

// OfferStore groups the repositories the offer workflows write to.
type OfferStore struct {
	Offers    *repos.OfferRepo
	Products  *repos.ProductRepo
	Images    *repos.ImageRepo
	Customers *repos.CustomerRepo
}

type OfferService struct {
	Store         OfferStore
	Bucket        storage.Bucket
	Resolver      ImageResolver
	Notifications *NotificationService
	Metrics       metrics.Offers
	Log           *zap.Logger
	now           func() time.Time
}

func NewOfferService(store OfferStore, bucket storage.Bucket, ttl time.Duration, notes *NotificationService, m metrics.Offers, log *zap.Logger) *OfferService {
	return &OfferService{
		Store:         store,
		Bucket:        bucket,
		Resolver:      ImageResolver{Bucket: bucket, TTL: ttl, Log: log},
		Notifications: notes,
		Metrics:       m,
		Log:           log,
		now:           time.Now,
	}
}

// Submit stores a customer's product request as one draft offer. Products
// are written in entry order; the images of one product are stored
// concurrently. Rows written before a failure are kept.
func (s *OfferService) Submit(ctx context.Context, customer domain.Customer, actor string, form *forms.ProductForm) (*domain.Offer, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	offer := &domain.Offer{
		CustomerID: customer.ID,
		CreatedBy:  actor,
		Title:      DefaultOfferTitle,
		OwnerName:  customer.Name,
		OwnerEmail: customer.Email,
		OwnerPhone: customer.Phone,
		Status:     domain.StatusDraft,
		Currency:   domain.DefaultCurrency,
	}
	if err := s.Store.Offers.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	for i, e := range form.Entries {
		p := &domain.Product{
			OfferID:     offer.ID,
			CustomerID:  customer.ID,
			Name:        strings.TrimSpace(e.Name),
			Explanation: e.Description,
			Count:       e.Quantity,
			ServiceType: e.ServiceType,
			Position:    i,
			Fields:      domain.ProductFields{Currency: domain.DefaultCurrency},
		}
		if err := s.Store.Products.Create(ctx, p); err != nil {
			return offer, fmt.Errorf("create product %d: %w", i+1, err)
		}
		s.Metrics.IncProductCreated(metrics.OriginCustomer)
		if err := s.storeImages(ctx, customer.ID, p.ID, e); err != nil {
			return offer, fmt.Errorf("product %d images: %w", i+1, err)
		}
		offer.Products = append(offer.Products, *p)
	}

	s.Metrics.IncOfferSubmitted(metrics.OriginCustomer)
	if s.Notifications != nil {
		if _, err := s.Notifications.Notify(ctx, customer.ID, offer.ID,
			"We received your request",
			"Your product request was received. We will prepare your offer shortly.",
			domain.NotifyInfo); err != nil {
			s.Log.Warn("offers: receipt notification failed", zap.String("offer_id", offer.ID), zap.Error(err))
		}
	}
	return offer, nil
}

// storeImages uploads files and links URLs for one product. Upload failures
// are skipped except a missing bucket; row inserts must succeed.
func (s *OfferService) storeImages(ctx context.Context, customerID, productID string, e forms.ProductEntry) error {
	g, gctx := errgroup.WithContext(ctx)
	now := s.now()
	for idx, f := range e.Files {
		idx, f := idx, f
		g.Go(func() error {
			objectPath := storage.CustomerUploadPath(customerID, productID, idx, f.Name, now)
			if err := s.upload(gctx, objectPath, f); err != nil {
				if errors.Is(err, storage.ErrBucketNotFound) {
					s.Metrics.IncImageUpload(metrics.UploadFailed)
					return err
				}
				s.Metrics.IncImageUpload(metrics.UploadSkipped)
				s.Log.Warn("offers: image upload skipped",
					zap.String("product_id", productID),
					zap.String("file", f.Name),
					zap.Error(err))
				return nil
			}
			s.Metrics.IncImageUpload(metrics.UploadStored)
			return s.Store.Images.Insert(gctx, &domain.ProductImage{
				ProductID:  productID,
				CustomerID: customerID,
				Path:       objectPath,
				SortOrder:  idx,
				Source:     domain.SourceUpload,
			})
		})
	}
	for idx, u := range e.URLs {
		idx, u := idx, u
		g.Go(func() error {
			return s.Store.Images.Insert(gctx, &domain.ProductImage{
				ProductID:  productID,
				CustomerID: customerID,
				Path:       u,
				SortOrder:  len(e.Files) + idx,
				Source:     domain.SourceURL,
			})
		})
	}
	return g.Wait()
}

func (s *OfferService) upload(ctx context.Context, objectPath string, f forms.Upload) error {
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

// ListForCustomer returns the customer's offers newest first with resolved
// image URLs.
func (s *OfferService) ListForCustomer(ctx context.Context, customerID string) ([]domain.Offer, error) {
	offers, err := s.Store.Offers.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	s.Resolver.Offers(offers)
	return offers, nil
}

// GetForCustomer returns one offer if customerID owns it.
func (s *OfferService) GetForCustomer(ctx context.Context, customerID, offerID string) (*domain.Offer, error) {
	o, err := s.Store.Offers.ByID(ctx, offerID)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	s.Resolver.Products(o.Products)
	return o, nil
}

// Customer loads the signed-in customer's profile row.
func (s *OfferService) Customer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := s.Store.Customers.ByID(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, ErrNotFound
	}
	return c, err
}
