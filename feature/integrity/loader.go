package integrity

import (
	"github.com/gofiber/fiber/v2"
)

// Feature exposes the integrity checks over HTTP.
type Feature struct {
	service *Service
}

// NewFeature wraps a service as a loadable feature.
func NewFeature(service *Service) *Feature {
	return &Feature{service: service}
}

// Name returns the feature name.
func (f *Feature) Name() string {
	return "integrity"
}

// IsEnabled reports whether the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the integrity routes.
func (f *Feature) Load(app fiber.Router) error {
	NewHandler(f.service).RegisterRoutes(app)
	return nil
}
