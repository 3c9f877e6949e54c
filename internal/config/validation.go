package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

func (ve *ValidationErrors) collect(err error) {
	if err == nil {
		return
	}
	var v ValidationError
	if errors.As(err, &v) {
		*ve = append(*ve, v)
		return
	}
	ve.Add("", err.Error())
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateRequiredSlice checks if a required slice is not empty
func ValidateRequiredSlice(field string, value []string, entityType string) error {
	if len(value) == 0 {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must have at least one item for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateHTTPSURL checks that value is an absolute https URL. Plain http
// is accepted for loopback hosts only.
func ValidateHTTPSURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return ValidationError{Field: field, Value: value, Message: "must be an absolute URL"}
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
	}
	return ValidationError{Field: field, Value: value, Message: "must use https"}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

var (
	channelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	hostPattern    = regexp.MustCompile(`^\.?[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)
)

// maxURLExpiryCeiling bounds releases.maxURLExpiry.
const maxURLExpiryCeiling = time.Hour

// CheckIntervals are the accepted releases.checkInterval values.
var CheckIntervals = []string{"daily", "weekly", "never"}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	a := c.Auth
	errs.collect(ValidateRequired("auth.clientID", a.ClientID, "login"))
	errs.collect(ValidateRequiredSlice("auth.scopes", a.Scopes, "login"))
	if a.Discover {
		errs.collect(ValidateHTTPSURL("auth.issuer", a.Issuer))
	} else if a.Endpoints.DeviceAuthorization == "" || a.Endpoints.Token == "" {
		errs.Add("auth.endpoints", "deviceAuthorization and token are required when discovery is disabled")
	}
	for _, ep := range []struct{ field, value string }{
		{"auth.endpoints.deviceAuthorization", a.Endpoints.DeviceAuthorization},
		{"auth.endpoints.token", a.Endpoints.Token},
		{"auth.endpoints.revocation", a.Endpoints.Revocation},
	} {
		if ep.value != "" {
			errs.collect(ValidateHTTPSURL(ep.field, ep.value))
		}
	}
	if a.RefreshBuffer < 0 {
		errs.Add("auth.refreshBuffer", "must not be negative", a.RefreshBuffer)
	}
	if a.RefreshAttempts < 1 || a.RefreshAttempts > 10 {
		errs.Add("auth.refreshAttempts", "must be between 1 and 10", a.RefreshAttempts)
	}

	r := c.Releases
	errs.collect(ValidateHTTPSURL("releases.apiURL", r.APIURL))
	if !channelPattern.MatchString(r.Channel) {
		errs.Add("releases.channel", "must be a lowercase channel name such as stable or beta", r.Channel)
	}
	if len(r.AllowedHosts) == 0 {
		errs.Add("releases.allowedHosts", "must list at least one download host")
	}
	for _, h := range r.AllowedHosts {
		if !hostPattern.MatchString(strings.ToLower(h)) {
			errs.Add("releases.allowedHosts", fmt.Sprintf("%q is not a host name", h), h)
		}
	}
	if r.MaxURLExpiry <= 0 || r.MaxURLExpiry.Std() > maxURLExpiryCeiling {
		errs.Add("releases.maxURLExpiry", fmt.Sprintf("must be positive and at most %s", maxURLExpiryCeiling), r.MaxURLExpiry)
	}
	if r.MaxDownloadBytes <= 0 {
		errs.Add("releases.maxDownloadBytes", "must be positive", r.MaxDownloadBytes)
	}
	if r.Timeout <= 0 {
		errs.Add("releases.timeout", "must be positive", r.Timeout)
	}
	if r.SelfCheckTimeout <= 0 {
		errs.Add("releases.selfCheckTimeout", "must be positive", r.SelfCheckTimeout)
	}
	errs.collect(ValidateOneOf("releases.checkInterval", r.CheckInterval, CheckIntervals))

	if errs.HasErrors() {
		return errs
	}
	return nil
}
