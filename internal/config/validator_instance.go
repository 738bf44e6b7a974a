package config

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	sshGitPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+:[a-zA-Z0-9._/~-]+$`)
)

// validatorInstance configures and returns the shared validator instance used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("bundle_location", func(fl validator.FieldLevel) bool {
			return isBundleLocation(fl.Field().String())
		})

		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			_, err := time.ParseDuration(fl.Field().String())
			return err == nil
		})

		validateInst = v
	})

	return validateInst
}

// isBundleLocation accepts git URLs and syntactically valid local paths.
func isBundleLocation(location string) bool {
	if strings.TrimSpace(location) == "" {
		return false
	}
	if strings.Contains(location, "\x00") {
		return false
	}

	if parsedURL, err := url.Parse(location); err == nil {
		switch strings.ToLower(parsedURL.Scheme) {
		case "http", "https", "ssh":
			return parsedURL.Host != ""
		case "file":
			return parsedURL.Path != ""
		}
	}

	if sshGitPattern.MatchString(location) {
		return true
	}

	// Any other string is treated as a filesystem path, relative to app_path.
	return !strings.Contains(location, "://")
}
