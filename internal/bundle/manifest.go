package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

// ManifestFile is the optional descriptor at a bundle's root.
const ManifestFile = "bundle.yaml"

// DefaultVersion is assigned to bundles that do not declare one.
const DefaultVersion = "0.0.0"

// Manifest identifies a bundle for manual name@version lookups.
type Manifest struct {
	Name        string `yaml:"name" validate:"omitempty,max=128"`
	Version     string `yaml:"version" validate:"omitempty,semver"`
	Description string `yaml:"description"`
}

var (
	manifestValidatorOnce sync.Once
	manifestValidator     *validator.Validate
)

// LoadManifest reads the manifest under root. A missing file yields a manifest
// named after fallbackName with DefaultVersion.
func LoadManifest(root, fallbackName string) (Manifest, error) {
	path := filepath.Join(root, ManifestFile)
	m := Manifest{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Manifest{}, bulkheaderrors.NewParseError(path, 0, err)
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Manifest{}, bulkheaderrors.NewParseError(path, 0, err)
		}
	}

	manifestValidatorOnce.Do(func() {
		manifestValidator = validator.New()
	})
	if err := manifestValidator.Struct(m); err != nil {
		return Manifest{}, bulkheaderrors.NewValidationError(path, fmt.Sprintf("invalid manifest: %v", err), err)
	}

	if m.Name == "" {
		m.Name = fallbackName
	}
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	return m, nil
}
