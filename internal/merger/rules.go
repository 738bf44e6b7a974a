package merger

import (
	"regexp"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/scanner"
)

// APIDir is the directory under a bundle root holding its category folders.
const APIDir = "api"

// Rules returns the scanner rule for every category.
func Rules() map[bundle.Category]scanner.Rule {
	return map[bundle.Category]scanner.Rule{
		bundle.CategoryConfig: {
			Filter:     scanner.FilterFor(`(.+)`),
			NoIdentity: true,
		},
		bundle.CategoryControllers: {
			Filter:            scanner.FilterFor(`(.+)Controller`),
			Replace:           regexp.MustCompile(`Controller`),
			Flatten:           true,
			KeepDirectoryPath: true,
		},
		bundle.CategoryPolicies: {
			Filter:            scanner.FilterFor(`(.+)`),
			Flatten:           true,
			KeepDirectoryPath: true,
		},
		bundle.CategoryServices: {
			Filter:        scanner.FilterFor(`(.+)`),
			Depth:         1,
			CaseSensitive: true,
		},
		bundle.CategoryAdapters: {
			Filter:  scanner.FilterFor(`(.+Adapter)`),
			Replace: regexp.MustCompile(`Adapter`),
			Flatten: true,
		},
		bundle.CategoryModels: {
			Filter:  scanner.FilterFor(`^([^.]+)`),
			Replace: regexp.MustCompile(`^.*/`),
			Flatten: true,
		},
		bundle.CategoryHooks: {
			Filter:       scanner.FilterFor(`^(.+)`),
			Depth:        2,
			IndexFolders: true,
		},
		bundle.CategoryBlueprints: {
			Filter:            scanner.FilterFor(`(.+)`),
			UseGlobalIDForKey: true,
		},
		bundle.CategoryResponses: {
			Filter:            scanner.FilterFor(`(.+)`),
			UseGlobalIDForKey: true,
		},
	}
}
