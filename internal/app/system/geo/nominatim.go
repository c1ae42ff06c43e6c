// internal/app/system/geo/nominatim.go

package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/memberlink/memberlink/internal/domain/models"
)

// NominatimGeocoder reverse-geocodes against a Nominatim-compatible
// endpoint. Requests are throttled to one per second per the service's
// usage policy.
type NominatimGeocoder struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewNominatimGeocoder creates a geocoder for baseURL (e.g.
// "https://nominatim.openstreetmap.org").
func NewNominatimGeocoder(baseURL string, timeout time.Duration, logger *zap.Logger) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:     logger,
	}
}

type nominatimResponse struct {
	Address struct {
		Road        string `json:"road"`
		Suburb      string `json:"suburb"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
		Country     string `json:"country"`
	} `json:"address"`
}

// Reverse resolves coordinates into a postal address, waiting on the
// rate limiter first so bursts of lookups queue instead of being
// rejected upstream.
func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lon float64) (models.AddressDraft, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return models.AddressDraft{}, err
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%.7f", lat))
	q.Set("lon", fmt.Sprintf("%.7f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return models.AddressDraft{}, fmt.Errorf("geo: build request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return models.AddressDraft{}, fmt.Errorf("geo: reverse lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.AddressDraft{}, fmt.Errorf("geo: reverse lookup status %d", resp.StatusCode)
	}

	var out nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.AddressDraft{}, fmt.Errorf("geo: decode response: %w", err)
	}

	city := out.Address.City
	if city == "" {
		city = out.Address.Town
	}
	if city == "" {
		city = out.Address.Village
	}
	street := out.Address.Road
	if street == "" {
		street = out.Address.Suburb
	}

	g.log.Debug("reverse geocode resolved",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.String("city", city))

	return models.AddressDraft{
		Street:     street,
		City:       city,
		State:      out.Address.State,
		PostalCode: out.Address.Postcode,
		Country:    out.Address.Country,
		Latitude:   lat,
		Longitude:  lon,
	}, nil
}
