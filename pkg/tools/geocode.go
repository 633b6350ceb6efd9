package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"google.golang.org/genai"
)

const defaultGeocodeTimeout = 6 * time.Second

// LocationProvider yields the device's current position.
type LocationProvider interface {
	Location(ctx context.Context) (lat, lon float64, err error)
}

// StaticLocation is a fixed-position provider for devices without GPS.
type StaticLocation struct {
	Lat float64
	Lon float64
}

// Location returns the configured position.
func (s StaticLocation) Location(context.Context) (float64, float64, error) {
	return s.Lat, s.Lon, nil
}

// Geocoder resolves coordinates to a human-readable address via a
// Nominatim-style reverse geocoding endpoint.
type Geocoder struct {
	baseURL string
	client  *http.Client
}

// NewGeocoder creates a Geocoder against the given endpoint.
func NewGeocoder(baseURL string) *Geocoder {
	return &Geocoder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultGeocodeTimeout},
	}
}

// Reverse resolves lat/lon to an address string.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode returned status %d", resp.StatusCode)
	}

	var payload struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.DisplayName == "" {
		return "", fmt.Errorf("reverse geocode returned no address")
	}
	return payload.DisplayName, nil
}

// LocationTool builds the lookup_location tool: it reports the current
// position and, when reverse geocoding succeeds, the street address. A
// geocoding failure degrades to coordinates only rather than failing the
// call.
func LocationTool(provider LocationProvider, geocoder *Geocoder) (*genai.FunctionDeclaration, Handler) {
	decl := &genai.FunctionDeclaration{
		Name:        "lookup_location",
		Description: "Returns the user's current position and street address.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"verbose": {
					Type:        genai.TypeBoolean,
					Description: "Include raw coordinates in the response.",
				},
			},
		},
	}

	handler := func(ctx context.Context, args map[string]any) (map[string]any, error) {
		lat, lon, err := provider.Location(ctx)
		if err != nil {
			return nil, fmt.Errorf("position unavailable: %w", err)
		}

		response := map[string]any{
			"latitude":  lat,
			"longitude": lon,
		}
		if geocoder != nil {
			if address, err := geocoder.Reverse(ctx, lat, lon); err == nil {
				response["address"] = address
			}
		}
		return response, nil
	}

	return decl, handler
}
