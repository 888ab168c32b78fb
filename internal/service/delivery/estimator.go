// Package delivery computes multi-stop delivery routes and their cost.
// Estimates feed the checkout price display and therefore never fail:
// any internal error yields a zero estimate carrying an error marker.
package delivery

import (
	"context"
	"math"
	"time"

	"bazaar/internal/monitor"
	"bazaar/pkg/log"
)

// Point a geographic coordinate
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point carries usable coordinates
func (p Point) Valid() bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Options estimate modifiers supplied by the caller
type Options struct {
	Vehicle       string  `json:"vehicle"`
	Urgency       string  `json:"urgency"`
	Weather       string  `json:"weather"`
	Zone          string  `json:"zone"`
	CourierRating float64 `json:"courier_rating"`
	HeavyItems    bool    `json:"heavy_items"`
}

// Estimate a priced route. Err is non-empty when the computation failed
// and the zero values are placeholders.
type Estimate struct {
	Cost       int64   `json:"cost"`
	DistanceKm float64 `json:"distance_km"`
	Route      []Point `json:"route"`
	Vehicle    string  `json:"vehicle"`
	Err        string  `json:"err,omitempty"`
}

// exhaustiveLimit beyond this many pickups the permutation space is too
// large and the nearest-neighbor heuristic takes over
const exhaustiveLimit = 8

// Estimator prices delivery routes using the current rate table
type Estimator struct {
	rates   rateSource
	metrics *monitor.MetricsCollector
}

// NewEstimator creates an estimator
func NewEstimator(rates rateSource, metrics *monitor.MetricsCollector) *Estimator {
	return &Estimator{rates: rates, metrics: metrics}
}

// Estimate prices a route from depot through the seller pickups to the
// customer. Pickups without valid coordinates are skipped; with none left
// the route is the single depot to customer segment.
func (e *Estimator) Estimate(ctx context.Context, depot, customer Point, pickups []Point, opts Options) (result Estimate) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(map[string]interface{}{"panic": r}).Error("Delivery estimate failed")
			result = Estimate{Err: "estimate_failed"}
			e.record("panic", start)
		}
	}()

	valid := make([]Point, 0, len(pickups))
	for _, p := range pickups {
		if p.Valid() {
			valid = append(valid, p)
		}
	}

	route := e.orderRoute(depot, customer, valid)

	var distance float64
	for i := 1; i < len(route); i++ {
		distance += haversineKm(route[i-1], route[i])
	}

	table := e.rates.Current(ctx)

	vehicle := opts.Vehicle
	if vehicle == "" {
		vehicle = VehicleCar
	}
	if opts.HeavyItems {
		vehicle = VehicleHeavy
	}

	cost := float64(table.BaseFee) + table.PerKm*distance
	cost *= factor(table.Weather, opts.Weather)
	cost *= factor(table.Zone, opts.Zone)
	cost *= factor(table.Vehicle, vehicle)
	cost *= factor(table.Urgency, opts.Urgency)
	cost *= ratingFactor(opts.CourierRating, table.RatingSlope)

	e.record("success", start)
	return Estimate{
		Cost:       int64(math.Round(cost)),
		DistanceKm: math.Round(distance*100) / 100,
		Route:      route,
		Vehicle:    vehicle,
	}
}

func (e *Estimator) record(status string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordEstimate(status, time.Since(start))
	}
}

// ratingFactor discounts reliable couriers and surcharges poor ones around
// the neutral rating of 3.0. A zero rating means unknown and is neutral.
func ratingFactor(rating, slope float64) float64 {
	if rating <= 0 || slope <= 0 {
		return 1.0
	}
	if rating > 5 {
		rating = 5
	}
	return 1.0 + (3.0-rating)*slope
}

// orderRoute builds depot -> pickups -> customer. Small pickup sets are
// ordered exhaustively, larger ones by nearest neighbor.
func (e *Estimator) orderRoute(depot, customer Point, pickups []Point) []Point {
	if len(pickups) == 0 {
		return []Point{depot, customer}
	}

	var ordered []Point
	if len(pickups) <= exhaustiveLimit {
		ordered = bestPermutation(depot, customer, pickups)
	} else {
		ordered = nearestNeighbor(depot, pickups)
	}

	route := make([]Point, 0, len(ordered)+2)
	route = append(route, depot)
	route = append(route, ordered...)
	route = append(route, customer)
	return route
}

// bestPermutation finds the pickup ordering minimizing total distance
func bestPermutation(depot, customer Point, pickups []Point) []Point {
	best := make([]Point, len(pickups))
	copy(best, pickups)
	bestDist := math.Inf(1)

	perm := make([]Point, len(pickups))
	copy(perm, pickups)

	var walk func(k int)
	walk = func(k int) {
		if k == len(perm) {
			d := routeDistance(depot, customer, perm)
			if d < bestDist {
				bestDist = d
				copy(best, perm)
			}
			return
		}
		for i := k; i < len(perm); i++ {
			perm[k], perm[i] = perm[i], perm[k]
			walk(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	walk(0)
	return best
}

// nearestNeighbor greedily visits the closest unvisited pickup
func nearestNeighbor(depot Point, pickups []Point) []Point {
	remaining := make([]Point, len(pickups))
	copy(remaining, pickups)

	ordered := make([]Point, 0, len(pickups))
	current := depot
	for len(remaining) > 0 {
		nearest := 0
		nearestDist := haversineKm(current, remaining[0])
		for i := 1; i < len(remaining); i++ {
			if d := haversineKm(current, remaining[i]); d < nearestDist {
				nearest = i
				nearestDist = d
			}
		}
		current = remaining[nearest]
		ordered = append(ordered, current)
		remaining = append(remaining[:nearest], remaining[nearest+1:]...)
	}
	return ordered
}

func routeDistance(depot, customer Point, pickups []Point) float64 {
	d := 0.0
	current := depot
	for _, p := range pickups {
		d += haversineKm(current, p)
		current = p
	}
	return d + haversineKm(current, customer)
}

const earthRadiusKm = 6371.0

// haversineKm great-circle distance between two points
func haversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
