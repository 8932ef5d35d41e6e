package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OriginCustomer = "customer"
	OriginAdmin    = "admin"

	UploadStored  = "stored"
	UploadSkipped = "skipped"
	UploadFailed  = "failed"
)

// Offers counts the offer workflow events.
type Offers interface {
	IncOfferSubmitted(origin string)
	IncProductCreated(origin string)
	IncImageUpload(result string)
	IncStatusChange(status string)
	IncNotificationRead()
}

type offerMetrics struct {
	offersSubmitted *prometheus.CounterVec
	productsCreated *prometheus.CounterVec
	imageUploads    *prometheus.CounterVec
	statusChanges   *prometheus.CounterVec
	notifRead       prometheus.Counter
}

func NewOfferMetrics(registry *prometheus.Registry) Offers {
	f := promauto.With(registry)
	return &offerMetrics{
		offersSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chinasource_offers_submitted_total",
			Help: "Offers created, by origin",
		}, []string{"origin"}),
		productsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chinasource_products_created_total",
			Help: "Product rows created, by origin",
		}, []string{"origin"}),
		imageUploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chinasource_image_uploads_total",
			Help: "Image uploads by result",
		}, []string{"result"}),
		statusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chinasource_status_changes_total",
			Help: "Admin offer status changes by new status",
		}, []string{"status"}),
		notifRead: f.NewCounter(prometheus.CounterOpts{
			Name: "chinasource_notifications_read_total",
			Help: "Notifications marked read",
		}),
	}
}

func (m *offerMetrics) IncOfferSubmitted(origin string) {
	m.offersSubmitted.WithLabelValues(origin).Inc()
}
func (m *offerMetrics) IncProductCreated(origin string) {
	m.productsCreated.WithLabelValues(origin).Inc()
}
func (m *offerMetrics) IncImageUpload(result string)  { m.imageUploads.WithLabelValues(result).Inc() }
func (m *offerMetrics) IncStatusChange(status string) { m.statusChanges.WithLabelValues(status).Inc() }
func (m *offerMetrics) IncNotificationRead()          { m.notifRead.Inc() }

// Nop discards everything.
type Nop struct{}

func (Nop) IncOfferSubmitted(string) {}
func (Nop) IncProductCreated(string) {}
func (Nop) IncImageUpload(string)    {}
func (Nop) IncStatusChange(string)   {}
func (Nop) IncNotificationRead()     {}
