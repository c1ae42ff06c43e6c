// internal/app/system/geo/geo.go

// Package geo provides device location access and reverse geocoding.
package geo

import (
	"context"
	"errors"

	"github.com/memberlink/memberlink/internal/domain/models"
)

// ErrPermissionDenied reports that the user refused location access.
// Callers must treat this as a hard stop for location-driven flows.
var ErrPermissionDenied = errors.New("geo: location permission denied")

// LocationProvider exposes the device's positioning service.
type LocationProvider interface {
	// RequestPermission prompts for location access. Returns
	// ErrPermissionDenied when refused.
	RequestPermission(ctx context.Context) error
	// Current returns the device's present coordinates.
	Current(ctx context.Context) (models.Coordinates, error)
}

// Geocoder resolves coordinates into a postal address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (models.AddressDraft, error)
}
