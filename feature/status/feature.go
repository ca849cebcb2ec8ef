package status

import (
	"github.com/gofiber/fiber/v2"
)

// Feature exposes reconciliation status over HTTP.
type Feature struct {
	service *Service
	enabled bool
}

// NewFeature wraps a service as a loadable feature.
func NewFeature(service *Service, enabled bool) *Feature {
	return &Feature{service: service, enabled: enabled}
}

// Name returns the feature name.
func (f *Feature) Name() string {
	return "status"
}

// IsEnabled reports whether the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.enabled
}

// Load registers the status routes.
func (f *Feature) Load(app fiber.Router) error {
	NewHandler(f.service).RegisterRoutes(app)
	return nil
}
