package match

import (
	"errors"
	"math"
	"time"

	"github.com/finbuch/matchcore/internal/model"
)

// ErrAlreadyRunning is returned by RunAll when a previous run still holds
// the pipelinerun.Guard slot.
var ErrAlreadyRunning = errors.New("match: a batch run is already in progress")

const retryDelay = 10 * time.Millisecond

func timeNow() time.Time { return time.Now() }

const earthRadiusKM = 6371.0

// haversineKM computes great-circle distance between two points. Used as
// a fallback when no drive-time measurement is available yet; component
// B's drive-time service supersedes this with an actual routed distance
// once computed.
func haversineKM(a, b model.GeoPoint) float64 {
	lat1, lon1 := toRadians(a.Lat), toRadians(a.Lon)
	lat2, lon2 := toRadians(b.Lat), toRadians(b.Lon)
	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
