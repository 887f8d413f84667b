package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	chunkSize       = 25
	chunkInterval   = 100 * time.Millisecond
	distanceMatrixURL = "https://maps.googleapis.com/maps/api/distancematrix/json"
)

// distanceMatrixAPI wraps the Google Maps Distance Matrix API, pacing
// chunked requests with golang.org/x/time/rate so a large batch never
// exceeds the provider's per-second quota.
type distanceMatrixAPI struct {
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func newDistanceMatrixAPI(apiKey string) *distanceMatrixAPI {
	return &distanceMatrixAPI{
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(chunkInterval), 1),
	}
}

func (a *distanceMatrixAPI) fetch(ctx context.Context, postalA, postalB string) (Result, error) {
	results, err := a.fetchBatch(ctx, postalA, []string{postalB})
	if err != nil {
		return Result{}, err
	}
	r, ok := results[postalB]
	if !ok {
		return Result{PostalA: postalA, PostalB: postalB, Status: StatusError}, nil
	}
	return r, nil
}

// fetchBatch resolves origin->destinations in chunks of chunkSize,
// waiting on the limiter between chunks so batches of any size degrade to
// a steady request rate instead of a burst.
func (a *distanceMatrixAPI) fetchBatch(ctx context.Context, origin string, destinations []string) (map[string]Result, error) {
	out := make(map[string]Result, len(destinations))

	for start := 0; start < len(destinations); start += chunkSize {
		end := start + chunkSize
		if end > len(destinations) {
			end = len(destinations)
		}
		chunk := destinations[start:end]

		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		carResults, err := a.call(ctx, origin, chunk, "driving")
		if err != nil {
			for _, dest := range chunk {
				out[dest] = Result{PostalA: origin, PostalB: dest, Status: StatusError}
			}
			continue
		}
		transitResults, err := a.call(ctx, origin, chunk, "transit")
		if err != nil {
			transitResults = map[string]apiElement{}
		}

		for _, dest := range chunk {
			r := Result{PostalA: origin, PostalB: dest, Status: StatusNoRoute}
			if car, ok := carResults[dest]; ok && car.Status == "OK" {
				km := float64(car.Distance.Value) / 1000.0
				carMin := car.Duration.Value / 60
				r.DistanceKM = &km
				r.DriveTimeCarMin = &carMin
				r.Status = StatusOK
			}
			if transit, ok := transitResults[dest]; ok && transit.Status == "OK" {
				transitMin := transit.Duration.Value / 60
				r.DriveTimeTransitMin = &transitMin
				r.Status = StatusOK
			}
			out[dest] = r
		}
	}
	return out, nil
}

type apiElement struct {
	Status   string `json:"status"`
	Distance struct {
		Value int `json:"value"` // meters
	} `json:"distance"`
	Duration struct {
		Value int `json:"value"` // seconds
	} `json:"duration"`
}

type apiResponse struct {
	Rows []struct {
		Elements []apiElement `json:"elements"`
	} `json:"rows"`
	Status string `json:"status"`
}

// transitDepartureTime returns a deterministic reference point for the
// transit leg: now + 1 day, so a lookup run on a weekend never asks the
// API to route transit through a schedule-sparse Saturday or Sunday
// (spec.md §4.B).
func transitDepartureTime(now time.Time) time.Time {
	return now.AddDate(0, 0, 1)
}

func (a *distanceMatrixAPI) call(ctx context.Context, origin string, destinations []string, mode string) (map[string]apiElement, error) {
	q := url.Values{}
	q.Set("origins", origin+",Germany")
	dests := make([]string, len(destinations))
	for i, d := range destinations {
		dests[i] = d + ",Germany"
	}
	q.Set("destinations", strings.Join(dests, "|"))
	q.Set("mode", mode)
	q.Set("key", a.apiKey)
	if mode == "transit" {
		q.Set("departure_time", fmt.Sprintf("%d", transitDepartureTime(time.Now()).Unix()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, distanceMatrixURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geo: build request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo: request: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("geo: decode response: %w", err)
	}
	if body.Status != "OK" || len(body.Rows) == 0 {
		return nil, fmt.Errorf("geo: distance matrix status %q", body.Status)
	}

	out := make(map[string]apiElement, len(destinations))
	for i, el := range body.Rows[0].Elements {
		if i >= len(destinations) {
			break
		}
		out[destinations[i]] = el
	}
	return out, nil
}
