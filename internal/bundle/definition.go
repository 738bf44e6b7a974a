package bundle

import (
	"fmt"
	"maps"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// RelationKeys are the attribute descriptor properties that point at another model identity.
var RelationKeys = []string{"collection", "model", "via"}

// ModelDefinition is a data-model contributed by a bundle.
type ModelDefinition struct {
	Identity   string         `mapstructure:"identity"`
	GlobalID   string         `mapstructure:"globalId"`
	Attributes map[string]any `mapstructure:"attributes"`
	Extra      map[string]any `mapstructure:",remain"`
}

// ServiceDefinition is a service contributed by a bundle. Bundle is set by
// activation and points back at the owning bundle.
type ServiceDefinition struct {
	Identity   string         `mapstructure:"identity"`
	GlobalID   string         `mapstructure:"globalId"`
	Properties map[string]any `mapstructure:",remain"`

	Bundle *Bundle `mapstructure:"-"`
}

// DecodeModel converts a raw definition into a ModelDefinition. Identity and
// GlobalID default to the lower-cased key and the key.
func DecodeModel(key string, def Definition) (*ModelDefinition, error) {
	var out ModelDefinition
	if err := decode(def, &out); err != nil {
		return nil, fmt.Errorf("decode model %q: %w", key, err)
	}
	if out.Identity == "" {
		out.Identity = strings.ToLower(key)
	}
	if out.GlobalID == "" {
		out.GlobalID = key
	}
	out.Attributes = cloneAttributes(out.Attributes)
	return &out, nil
}

// DecodeService converts a raw definition into a ServiceDefinition.
func DecodeService(key string, def Definition) (*ServiceDefinition, error) {
	var out ServiceDefinition
	if err := decode(def, &out); err != nil {
		return nil, fmt.Errorf("decode service %q: %w", key, err)
	}
	if out.Identity == "" {
		out.Identity = strings.ToLower(key)
	}
	if out.GlobalID == "" {
		out.GlobalID = key
	}
	return &out, nil
}

// Relations returns the relationship properties carried by a structured
// attribute descriptor. Scalar descriptors have none.
func Relations(attr any) map[string]string {
	desc, ok := attr.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for _, key := range RelationKeys {
		if target, ok := desc[key].(string); ok && target != "" {
			out[key] = target
		}
	}
	return out
}

// Source returns the definition in the shape the materialization subsystem consumes.
func (m *ModelDefinition) Source() Definition {
	out := make(Definition, len(m.Extra)+3)
	maps.Copy(out, m.Extra)
	out["identity"] = m.Identity
	out["globalId"] = m.GlobalID
	out["attributes"] = m.Attributes
	return out
}

func decode(input Definition, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(input))
}

// cloneAttributes copies structured descriptors so rewriting them never
// touches the raw category definitions.
func cloneAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		if desc, ok := attr.(map[string]any); ok {
			out[name] = maps.Clone(desc)
			continue
		}
		out[name] = attr
	}
	return out
}
