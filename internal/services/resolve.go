package services

import (
	"time"

	"go.uber.org/zap"

	"chinasource/internal/domain"
	"chinasource/internal/storage"
)

// DefaultSignedURLTTL is how long a resolved image link stays valid.
const DefaultSignedURLTTL = 7 * 24 * time.Hour

// ImageResolver turns stored image references into viewable URLs. External
// links pass through; storage paths are signed. Images that cannot be
// resolved are dropped from the product.
type ImageResolver struct {
	Bucket storage.Bucket
	TTL    time.Duration
	Log    *zap.Logger
}

func (r ImageResolver) ttl() time.Duration {
	if r.TTL <= 0 {
		return DefaultSignedURLTTL
	}
	return r.TTL
}

func (r ImageResolver) Product(p *domain.Product) {
	kept := p.Images[:0]
	for _, im := range p.Images {
		if im.Source == domain.SourceURL || storage.IsAbsoluteURL(im.Path) {
			im.URL = im.Path
			kept = append(kept, im)
			continue
		}
		u, err := r.Bucket.SignedURL(im.Path, r.ttl())
		if err != nil {
			r.Log.Debug("storage: image dropped", zap.String("path", im.Path), zap.Error(err))
			continue
		}
		im.URL = u
		kept = append(kept, im)
	}
	p.Images = kept
}

func (r ImageResolver) Products(products []domain.Product) {
	for i := range products {
		r.Product(&products[i])
	}
}

func (r ImageResolver) Offers(offers []domain.Offer) {
	for i := range offers {
		r.Products(offers[i].Products)
	}
}
