// Package validate holds request-shape checks shared by the HTTP handlers.
package validate

import (
	"fmt"
	"regexp"
	"time"
)

var emailRx = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Email checks a single address.
func Email(v string) error {
	if v == "" {
		return fmt.Errorf("email is required")
	}
	if len(v) > 320 || !emailRx.MatchString(v) {
		return fmt.Errorf("invalid email %q", v)
	}
	return nil
}

// Emails checks a list of addresses.
func Emails(addrs []string) error {
	for _, a := range addrs {
		if err := Email(a); err != nil {
			return err
		}
	}
	return nil
}

// NonEmpty checks a required string field.
func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// TimeRange checks that both bounds are set and ordered.
func TimeRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("start and end are required")
	}
	if !end.After(start) {
		return fmt.Errorf("end must be after start")
	}
	return nil
}
