// Package namespace prefixes a bundle's model and service identifiers so that
// many bundles can share one materialization pool, and remembers the original
// identifiers in a side table for activation to consume.
package namespace

import (
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
)

// Separator joins a namespace and an identifier.
const Separator = "_"

// Derive returns the namespace for a bundle source location: its final path
// segment, without trailing separators or a ".git" suffix.
func Derive(location string) string {
	trimmed := strings.TrimRight(filepath.ToSlash(location), "/")
	if idx := strings.LastIndexAny(trimmed, "/:"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return strings.TrimSuffix(trimmed, ".git")
}

// Prefix returns identifier qualified by ns.
func Prefix(ns, identifier string) string {
	return ns + Separator + identifier
}

// Rewriter rewrites bundles in place.
type Rewriter struct {
	logger *logger.Logger
}

// NewRewriter returns a Rewriter.
func NewRewriter(log *logger.Logger) *Rewriter {
	return &Rewriter{logger: log.Component("namespace")}
}

// Rewrite prefixes every model and service identity and globalId of b with ns,
// rewrites relationship descriptors to the prefixed targets and re-keys
// b.ModelDefs and b.ServiceDefs by the rewritten identity. It returns the
// side table of original identifiers.
//
// Rewrite performs no collision detection across bundles.
func (r *Rewriter) Rewrite(b *bundle.Bundle, ns string) *Shadows {
	shadows := NewShadows()
	b.Namespace = ns

	models := make(map[string]*bundle.ModelDefinition, len(b.ModelDefs))
	for _, model := range b.ModelDefs {
		original := Original{Identity: model.Identity, GlobalID: model.GlobalID}
		model.Identity = Prefix(ns, model.Identity)
		model.GlobalID = Prefix(ns, model.GlobalID)
		rewriteRelations(model.Attributes, ns)

		shadows.models[model.Identity] = original
		models[model.Identity] = model
	}
	b.ModelDefs = models

	services := make(map[string]*bundle.ServiceDefinition, len(b.ServiceDefs))
	for _, svc := range b.ServiceDefs {
		original := Original{Identity: svc.Identity, GlobalID: svc.GlobalID}
		svc.Identity = Prefix(ns, svc.Identity)
		svc.GlobalID = Prefix(ns, svc.GlobalID)

		shadows.services[svc.Identity] = original
		services[svc.Identity] = svc
	}
	b.ServiceDefs = services

	r.logger.WithFields(map[string]any{
		"namespace": ns,
		"models":    len(models),
		"services":  len(services),
	}).Debug("bundle namespaced")

	return shadows
}

func rewriteRelations(attrs map[string]any, ns string) {
	for _, attr := range attrs {
		desc, ok := attr.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range bundle.RelationKeys {
			if target, ok := desc[key].(string); ok && target != "" {
				desc[key] = Prefix(ns, target)
			}
		}
	}
}
