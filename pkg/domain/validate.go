package domain

import (
	"regexp"
	"strings"

	"orgdirectory/pkg/geo"
)

var phonePattern = regexp.MustCompile(`^[\d\s\-\+\(\)]+$`)

// ValidateCoordinates checks latitude and longitude ranges for a building.
func ValidateCoordinates(lat, lng float64) error {
	if !geo.ValidLatitude(lat) {
		return NewValidationError(EntityBuilding, "latitude", "must be between %v and %v", geo.MinLatitude, geo.MaxLatitude)
	}
	if !geo.ValidLongitude(lng) {
		return NewValidationError(EntityBuilding, "longitude", "must be between %v and %v", geo.MinLongitude, geo.MaxLongitude)
	}
	return nil
}

// ValidatePhoneNumber accepts digits, spaces, dashes, plus signs and
// parentheses, at least MinPhoneLength characters long.
func ValidatePhoneNumber(number string) error {
	if len(number) < MinPhoneLength || !phonePattern.MatchString(number) {
		return NewValidationError(EntityPhone, "number", "invalid phone number %q", number)
	}
	return nil
}

// ValidateName rejects blank names.
func ValidateName(entity EntityType, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(entity, field, "must not be empty")
	}
	return nil
}
