package host

import (
	"github.com/alexisbeaulieu97/bulkhead/internal/inject"
)

// Names of the dependencies every bundle constructor can declare.
const (
	DepBundle   = "bundle"
	DepModels   = "models"
	DepServices = "services"
	DepConfig   = "config"
	DepLogger   = "logger"
)

// Instantiate builds a component for the bundle registered under key
// (location or name@version). The bundle, its activated models and services,
// its merged config and a bundle-scoped logger are available by name; args
// follow inject.Factory.New.
func Instantiate[T any](h *Host, key string, ctor inject.Constructor[T], args ...any) (T, error) {
	var zero T
	b, err := h.Lookup(key)
	if err != nil {
		return zero, err
	}

	factory := inject.Bind(ctor, map[string]any{
		DepBundle:   b,
		DepModels:   b.Models,
		DepServices: b.Services,
		DepConfig:   b.Config,
		DepLogger:   h.logger.With("bundle", b.Namespace),
	})
	return factory.New(args...)
}
