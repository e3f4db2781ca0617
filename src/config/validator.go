package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates configuration values using go-playground/validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	v := validator.New()

	v.RegisterValidation("listen_addr", validateListenAddr)
	v.RegisterValidation("log_level", validateLogLevel)
	v.RegisterValidation("log_format", validateLogFormat)
	v.RegisterValidation("cors_origin", validateCORSOrigin)
	v.RegisterValidation("cors_origins", validateCORSOrigins)

	return &Validator{
		validate: v,
	}
}

// Validate validates a complete configuration
func (v *Validator) Validate(config *Config) error {
	// Set default version if empty
	if config.Version == "" {
		config.Version = "1.0"
	}

	if err := v.validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			e := validationErrors[0]
			return ValidationError{
				Field:   e.Namespace(),
				Message: fmt.Sprintf("validation failed on tag '%s' with value '%v'", e.Tag(), e.Value()),
				Value:   e.Value(),
			}
		}
		return err
	}

	return nil
}

// validateListenAddr accepts host:port where host may be empty
func validateListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	return err == nil && port != ""
}

// validateLogLevel validates log level values
func validateLogLevel(fl validator.FieldLevel) bool {
	value := strings.ToLower(fl.Field().String())
	if value == "" {
		return true
	}
	return contains([]string{"debug", "info", "warn", "warning", "error"}, value)
}

// validateLogFormat validates log format values
func validateLogFormat(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return contains([]string{"json", "text"}, value)
}

// validateCORSOrigin accepts "*" or an http(s) origin
func validateCORSOrigin(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "*" {
		return true
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// validateCORSOrigins rejects "*" mixed with explicit origins
func validateCORSOrigins(fl validator.FieldLevel) bool {
	origins, ok := fl.Field().Interface().([]string)
	if !ok || len(origins) < 2 {
		return true
	}
	return !contains(origins, "*")
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
