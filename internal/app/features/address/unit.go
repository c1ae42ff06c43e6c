// internal/app/features/address/unit.go

// Package address captures the member's postal address, either typed in
// by hand or resolved from the device's location.
package address

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/memberlink/memberlink/internal/app/system/geo"
	"github.com/memberlink/memberlink/internal/app/system/timeouts"
	"github.com/memberlink/memberlink/internal/domain/models"
)

// ErrIncomplete is returned by Confirm when required fields are empty.
var ErrIncomplete = errors.New("address: required fields missing")

// Unit holds the in-progress address draft.
//
// Geocode results apply last-write-wins: each lookup is numbered when
// it starts, and a result is discarded if a later lookup has already
// landed. A resolved lookup replaces the whole draft, including fields
// the user edited by hand while it was in flight; edits made after the
// last lookup resolves are never touched.
type Unit struct {
	Location geo.LocationProvider
	Geocoder geo.Geocoder
	Log      *zap.Logger

	seq         atomic.Int64
	mu          sync.Mutex
	lastApplied int64
	draft       models.AddressDraft
}

// NewUnit creates an address capture unit.
func NewUnit(location geo.LocationProvider, geocoder geo.Geocoder, logger *zap.Logger) *Unit {
	return &Unit{
		Location: location,
		Geocoder: geocoder,
		Log:      logger,
	}
}

// UseCurrentLocation fills the draft from the device's position. A
// permission refusal is a hard stop: the caller must surface it and
// fall back to manual entry, not proceed with an empty draft.
func (u *Unit) UseCurrentLocation(ctx context.Context) error {
	if err := u.Location.RequestPermission(ctx); err != nil {
		return err
	}

	locCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	coords, err := u.Location.Current(locCtx)
	if err != nil {
		return fmt.Errorf("address: read location: %w", err)
	}
	return u.Resolve(ctx, coords.Latitude, coords.Longitude)
}

// Resolve reverse-geocodes coordinates into the draft. Concurrent calls
// are safe; only the most recently started lookup may win.
func (u *Unit) Resolve(ctx context.Context, lat, lon float64) error {
	req := u.seq.Add(1)

	geoCtx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()

	resolved, err := u.Geocoder.Reverse(geoCtx, lat, lon)
	if err != nil {
		return fmt.Errorf("address: reverse geocode: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if req <= u.lastApplied {
		u.Log.Debug("stale geocode result discarded",
			zap.Int64("request", req),
			zap.Int64("applied", u.lastApplied))
		return nil
	}
	u.lastApplied = req
	u.draft = resolved

	u.Log.Debug("address resolved from location",
		zap.Int64("request", req),
		zap.String("city", resolved.City))
	return nil
}

// SetStreet and friends record manual edits to the draft.
func (u *Unit) SetStreet(v string)     { u.set(func(d *models.AddressDraft) { d.Street = v }) }
func (u *Unit) SetCity(v string)       { u.set(func(d *models.AddressDraft) { d.City = v }) }
func (u *Unit) SetState(v string)      { u.set(func(d *models.AddressDraft) { d.State = v }) }
func (u *Unit) SetPostalCode(v string) { u.set(func(d *models.AddressDraft) { d.PostalCode = v }) }
func (u *Unit) SetCountry(v string)    { u.set(func(d *models.AddressDraft) { d.Country = v }) }

func (u *Unit) set(apply func(*models.AddressDraft)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	apply(&u.draft)
}

// Draft returns a copy of the current draft.
func (u *Unit) Draft() models.AddressDraft {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.draft
}

// Confirm validates the draft and returns it for registration. Every
// missing required field is reported at once.
func (u *Unit) Confirm() (models.AddressDraft, map[string]string, error) {
	u.mu.Lock()
	d := u.draft
	u.mu.Unlock()

	fields := map[string]string{}
	if d.Street == "" {
		fields["street"] = "street is required"
	}
	if d.City == "" {
		fields["city"] = "city is required"
	}
	if d.Country == "" {
		fields["country"] = "country is required"
	}
	if len(fields) > 0 {
		return models.AddressDraft{}, fields, ErrIncomplete
	}
	return d, nil, nil
}
