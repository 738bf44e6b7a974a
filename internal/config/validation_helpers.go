package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

// ValidateConfig performs structural validation on an entire configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return bulkheaderrors.NewValidationError("config", "configuration is nil", nil)
	}

	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(cfg.Bundles))
	for i, location := range cfg.Bundles {
		if first, ok := seen[location]; ok {
			return bulkheaderrors.NewValidationError(
				fmt.Sprintf("bundles[%d]", i),
				fmt.Sprintf("duplicate bundle %q (first listed at bundles[%d])", location, first),
				nil,
			)
		}
		seen[location] = i
	}

	return nil
}

// convertValidationError normalizes validator errors into bulkhead validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return bulkheaderrors.NewValidationError(field, msg, err)
	}

	return bulkheaderrors.NewValidationError("config", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	var lowered []string
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}
