// Package scanner turns a category directory into a mapping of named
// definitions. It knows nothing about bundles or namespaces.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

// Extensions are the definition file formats the scanner decodes.
var Extensions = []string{".yaml", ".yml", ".json"}

const extPattern = `\.(ya?ml|json)$`

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Rule describes how files in a category directory become dictionary entries.
type Rule struct {
	// Filter selects files by base name; the first submatch becomes the entry name.
	Filter *regexp.Regexp
	// Replace, when set, is stripped from the entry name.
	Replace *regexp.Regexp
	// Flatten walks subdirectories without nesting their entries.
	Flatten bool
	// KeepDirectoryPath prefixes flattened entry names with their directory.
	KeepDirectoryPath bool
	// Depth bounds how many path segments below the root are visited. Zero
	// means unbounded when flattening and one otherwise.
	Depth int
	// IndexFolders accepts <dir>/index.<ext> as an entry named <dir>.
	IndexFolders bool
	// CaseSensitive keeps the entry name's case for its key.
	CaseSensitive bool
	// UseGlobalIDForKey keys entries by their declared globalId.
	UseGlobalIDForKey bool
	// NoIdentity skips injecting identity/globalId defaults.
	NoIdentity bool
}

// Scanner produces a mapping of derived names to loaded definitions.
type Scanner interface {
	Scan(ctx context.Context, dir string, rule Rule) (map[string]bundle.Definition, error)
}

// FS scans the local filesystem.
type FS struct{}

// New returns a filesystem scanner.
func New() *FS {
	return &FS{}
}

// FilterFor builds a filter matching <prefix><suffix>.<ext>, capturing the name.
func FilterFor(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern + extPattern)
}

// Scan walks dir according to rule. A missing directory yields an empty result.
func (s *FS) Scan(ctx context.Context, dir string, rule Rule) (map[string]bundle.Definition, error) {
	out := make(map[string]bundle.Definition)

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	maxDepth := rule.Depth
	if maxDepth == 0 && !rule.Flatten {
		maxDepth = 1
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(rel), "/") + 1

		if d.IsDir() {
			if maxDepth > 0 && depth >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if maxDepth > 0 && depth > maxDepth {
			return nil
		}

		name, ok := entryName(rel, depth, rule)
		if !ok {
			return nil
		}

		def, err := decodeFile(path)
		if err != nil {
			return err
		}

		key := name
		if !rule.CaseSensitive {
			key = strings.ToLower(name)
		}
		if !rule.NoIdentity {
			if _, set := def["identity"]; !set {
				def["identity"] = strings.ToLower(lastSegment(name))
			}
			if _, set := def["globalId"]; !set {
				def["globalId"] = lastSegment(name)
			}
		}
		if rule.UseGlobalIDForKey {
			if gid, ok := def["globalId"].(string); ok && gid != "" {
				key = gid
			}
		}

		out[key] = def
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func entryName(rel string, depth int, rule Rule) (string, bool) {
	base := filepath.Base(rel)
	dirPart := filepath.ToSlash(filepath.Dir(rel))

	if depth > 1 && rule.IndexFolders && !rule.Flatten {
		if !isIndexFile(base) || depth != 2 {
			return "", false
		}
		return dirPart, true
	}

	filter := rule.Filter
	if filter == nil {
		filter = FilterFor(`(.+)`)
	}
	matches := filter.FindStringSubmatch(base)
	if matches == nil {
		return "", false
	}
	name := base
	if len(matches) > 1 {
		name = matches[1]
	}
	if rule.Replace != nil {
		name = rule.Replace.ReplaceAllString(name, "")
	}
	if name == "" {
		return "", false
	}
	if rule.Flatten && rule.KeepDirectoryPath && dirPart != "." {
		name = dirPart + "/" + name
	}
	return name, true
}

func isIndexFile(base string) bool {
	for _, ext := range Extensions {
		if base == "index"+ext {
			return true
		}
	}
	return false
}

func lastSegment(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func decodeFile(path string) (bundle.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bulkheaderrors.NewParseError(path, 0, err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, bulkheaderrors.NewParseError(path, extractLine(err), err)
	}
	switch v := raw.(type) {
	case nil:
		return bundle.Definition{}, nil
	case map[string]any:
		return bundle.Definition(v), nil
	default:
		return nil, bulkheaderrors.NewParseError(path, 0, fmt.Errorf("definition must be a mapping, got %T", raw))
	}
}

func extractLine(err error) int {
	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
