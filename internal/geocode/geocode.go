// Package geocode resolves a free-text address or postal code into a
// WGS84 coordinate, backing internal/orchestrator's step 1. Grounded on
// internal/geo/client.go's distanceMatrixAPI: same Google Maps HTTP
// surface, same credential (GOOGLE_MAPS_API_KEY), same no-key-means-degrade
// contract.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/finbuch/matchcore/internal/model"
)

const geocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// ErrNotFound indicates the geocoder had no result for the address.
var ErrNotFound = fmt.Errorf("geocode: address not found")

// ErrNoAPIKey indicates the client was built without a credential.
var ErrNoAPIKey = fmt.Errorf("geocode: no api key configured")

// Client resolves addresses to coordinates over the Google Geocoding API.
// A zero apiKey makes every call fail fast with ErrNoAPIKey rather than
// reach the network, mirroring §4.B's drive-time client degrade contract.
type Client struct {
	apiKey string
	client *http.Client
}

// NewClient builds a geocoding client. apiKey == "" disables the client.
func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey, client: &http.Client{Timeout: 10 * time.Second}}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Resolve geocodes a free-text address (postal code + city is sufficient)
// into a point. Returns ErrNotFound when the provider has no match.
func (c *Client) Resolve(ctx context.Context, address string) (model.GeoPoint, error) {
	if c.apiKey == "" {
		return model.GeoPoint{}, ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("region", "de")
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, geocodeURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.GeoPoint{}, fmt.Errorf("geocode: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return model.GeoPoint{}, fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.GeoPoint{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if body.Status == "ZERO_RESULTS" || len(body.Results) == 0 {
		return model.GeoPoint{}, ErrNotFound
	}
	if body.Status != "OK" {
		return model.GeoPoint{}, fmt.Errorf("geocode: provider status %q", body.Status)
	}

	loc := body.Results[0].Geometry.Location
	return model.GeoPoint{Lat: loc.Lat, Lon: loc.Lng}, nil
}
