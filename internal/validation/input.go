// Package validation checks user-supplied fields before they reach the
// services. Failures are *models.ValidationError values.
package validation

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/narvanalabs/playdate/internal/models"
)

const (
	// MaxNameLength bounds account and child display names, in runes.
	MaxNameLength = 100
	// MaxMessageLength bounds free-text messages on requests and invitations.
	MaxMessageLength = 2000
	// MaxTitleLength bounds activity titles.
	MaxTitleLength = 200
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
	// MaxPasswordLength is bcrypt's input limit.
	MaxPasswordLength = 72
	// MaxJointHosts bounds the co-hosts of a single activity.
	MaxJointHosts = 10
)

// ValidateDisplayName checks a display name for the given field.
//
// Display name rules:
// - Must contain a non-space character
// - Must not exceed 100 characters
// - Must not contain control characters
func ValidateDisplayName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return &models.ValidationError{Field: field, Message: "name is required"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &models.ValidationError{Field: field, Message: "name must be 100 characters or less"}
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return &models.ValidationError{Field: field, Message: "name must not contain control characters"}
	}
	return nil
}

// ValidateMessage checks an optional free-text message.
func ValidateMessage(message string) error {
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return &models.ValidationError{Field: "message", Message: "message must be 2000 characters or less"}
	}
	return nil
}

// ValidatePassword checks a registration password.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &models.ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	if len(password) > MaxPasswordLength {
		return &models.ValidationError{Field: "password", Message: "password must be 72 bytes or less"}
	}
	return nil
}

// ValidateSchedule checks an activity's title and time window.
func ValidateSchedule(title string, startsAt, endsAt time.Time) error {
	if strings.TrimSpace(title) == "" {
		return &models.ValidationError{Field: "title", Message: "title is required"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return &models.ValidationError{Field: "title", Message: "title must be 200 characters or less"}
	}
	if startsAt.IsZero() {
		return &models.ValidationError{Field: "starts_at", Message: "start time is required"}
	}
	if endsAt.Before(startsAt) {
		return &models.ValidationError{Field: "ends_at", Message: "end time must not be before start time"}
	}
	return nil
}
