// Package loader provides the plugin-like feature loading system.
//
// It allows the application to register HTTP features (modules) and load the
// enabled ones onto the Fiber router. Each feature implements the Feature
// interface:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// # Manager
//
// The Manager holds the registry. Register adds a feature and LoadAll loads
// every enabled one in registration order, failing on the first error or on
// a duplicate name. The status and integrity features are registered this way
// by the start command.
package loader
