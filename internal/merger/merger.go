// Package merger folds the categories of one bundle directory into a bundle object.
package merger

import (
	"context"
	"maps"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
	"github.com/alexisbeaulieu97/bulkhead/internal/scanner"
	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

// Merger drives a Scanner over every category of a bundle.
type Merger struct {
	scanner scanner.Scanner
	rules   map[bundle.Category]scanner.Rule
	logger  *logger.Logger
}

// New returns a Merger using the default category rules.
func New(s scanner.Scanner, log *logger.Logger) *Merger {
	if s == nil {
		s = scanner.New()
	}
	return &Merger{scanner: s, rules: Rules(), logger: log.Component("merger")}
}

// Merge scans every category under root concurrently and folds the results
// into b. The first scan failure aborts the merge and leaves b untouched.
func (m *Merger) Merge(ctx context.Context, root string, b *bundle.Bundle) error {
	results := make([]map[string]bundle.Definition, len(bundle.Categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range bundle.Categories {
		g.Go(func() error {
			dir := filepath.Join(root, APIDir, string(category))
			out, err := m.scanner.Scan(gctx, dir, m.rules[category])
			if err != nil {
				return bulkheaderrors.NewScanError(b.Location, string(category), dir, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	models := make(map[string]*bundle.ModelDefinition)
	services := make(map[string]*bundle.ServiceDefinition)
	for i, category := range bundle.Categories {
		switch category {
		case bundle.CategoryModels:
			for key, def := range results[i] {
				model, err := bundle.DecodeModel(key, def)
				if err != nil {
					return bulkheaderrors.NewScanError(b.Location, string(category), filepath.Join(root, APIDir, string(category)), err)
				}
				models[key] = model
			}
		case bundle.CategoryServices:
			for key, def := range results[i] {
				svc, err := bundle.DecodeService(key, def)
				if err != nil {
					return bulkheaderrors.NewScanError(b.Location, string(category), filepath.Join(root, APIDir, string(category)), err)
				}
				services[key] = svc
			}
		}
	}

	for i, category := range bundle.Categories {
		if category == bundle.CategoryConfig {
			mergeConfig(b.Config, results[i])
			continue
		}
		b.Merge(category, results[i])
	}
	maps.Copy(b.ModelDefs, models)
	maps.Copy(b.ServiceDefs, services)

	m.logger.WithFields(map[string]any{
		"bundle":   b.Location,
		"models":   len(models),
		"services": len(services),
	}).Debug("bundle merged")

	return nil
}

// mergeConfig shallow-merges config files in lexical file order so later
// files win on key collisions.
func mergeConfig(dst map[string]any, files map[string]bundle.Definition) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		maps.Copy(dst, files[name])
	}
}
