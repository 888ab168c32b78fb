package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"bazaar/pkg/log"
)

// Vehicle tiers
const (
	VehicleBike  = "bike"
	VehicleCar   = "car"
	VehicleHeavy = "heavy"
)

// Urgency tiers
const (
	UrgencyStandard = "standard"
	UrgencyExpress  = "express"
)

// RateTable pricing factors for delivery estimates. Money is in cents.
type RateTable struct {
	BaseFee     int64              `json:"base_fee"`
	PerKm       float64            `json:"per_km"`
	Weather     map[string]float64 `json:"weather"`
	Zone        map[string]float64 `json:"zone"`
	Vehicle     map[string]float64 `json:"vehicle"`
	Urgency     map[string]float64 `json:"urgency"`
	RatingSlope float64            `json:"rating_slope"`
}

// factor returns the multiplier for key, defaulting to 1.0
func factor(m map[string]float64, key string) float64 {
	if f, ok := m[key]; ok && f > 0 {
		return f
	}
	return 1.0
}

// defaultRateTable hard-coded pricing used whenever the remote table is
// unavailable
func defaultRateTable() RateTable {
	return RateTable{
		BaseFee: 300,
		PerKm:   80,
		Weather: map[string]float64{
			"clear": 1.0,
			"rain":  1.2,
			"snow":  1.5,
		},
		Zone: map[string]float64{
			"core":   1.0,
			"outer":  1.15,
			"remote": 1.4,
		},
		Vehicle: map[string]float64{
			VehicleBike:  0.9,
			VehicleCar:   1.0,
			VehicleHeavy: 1.35,
		},
		Urgency: map[string]float64{
			UrgencyStandard: 1.0,
			UrgencyExpress:  1.5,
		},
		RatingSlope: 0.02,
	}
}

// rateSource yields the current rate table. Implementations must not fail:
// a table is always returned, falling back to defaults.
type rateSource interface {
	Current(ctx context.Context) RateTable
}

const ratesCacheKey = "delivery:rates"

// RemoteRateSource loads the rate table from a remote URL, caching it
// in-process and in redis. Every failure path degrades to the defaults.
type RemoteRateSource struct {
	url    string
	redis  *redis.Client // optional
	ttl    time.Duration
	client *http.Client

	mu       sync.RWMutex
	table    RateTable
	loadedAt time.Time
}

// NewRemoteRateSource creates a rate source. The redis client may be nil.
func NewRemoteRateSource(url string, redisClient *redis.Client, ttl time.Duration) *RemoteRateSource {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &RemoteRateSource{
		url:    url,
		redis:  redisClient,
		ttl:    ttl,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Current returns the freshest available rate table
func (s *RemoteRateSource) Current(ctx context.Context) RateTable {
	s.mu.RLock()
	fresh := !s.loadedAt.IsZero() && time.Since(s.loadedAt) < s.ttl
	table := s.table
	s.mu.RUnlock()
	if fresh {
		return table
	}

	if t, err := s.load(ctx); err == nil {
		s.mu.Lock()
		s.table = t
		s.loadedAt = time.Now()
		s.mu.Unlock()
		return t
	} else {
		log.WithError(err).Warn("Rate table unavailable, using defaults")
	}

	// serve a stale table over defaults when one was ever loaded
	if !s.loadedAt.IsZero() {
		return table
	}
	return defaultRateTable()
}

func (s *RemoteRateSource) load(ctx context.Context) (RateTable, error) {
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, ratesCacheKey).Bytes(); err == nil {
			var t RateTable
			if json.Unmarshal(data, &t) == nil && t.PerKm > 0 {
				return t, nil
			}
		}
	}

	t, err := s.fetchRemote(ctx)
	if err != nil {
		return RateTable{}, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(t); err == nil {
			if err := s.redis.Set(ctx, ratesCacheKey, data, s.ttl).Err(); err != nil {
				log.WithError(err).Debug("Failed to cache rate table in redis")
			}
		}
	}
	return t, nil
}

func (s *RemoteRateSource) fetchRemote(ctx context.Context) (RateTable, error) {
	if s.url == "" {
		return RateTable{}, fmt.Errorf("no rate table URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return RateTable{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return RateTable{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RateTable{}, fmt.Errorf("rate table endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return RateTable{}, err
	}

	var t RateTable
	if err := json.Unmarshal(data, &t); err != nil {
		return RateTable{}, fmt.Errorf("malformed rate table: %w", err)
	}
	if t.PerKm <= 0 {
		return RateTable{}, fmt.Errorf("rate table missing per_km")
	}
	return t, nil
}

// StaticRateSource serves a fixed table, used in tests and as an offline mode
type StaticRateSource struct {
	Table RateTable
}

// Current returns the fixed table
func (s StaticRateSource) Current(ctx context.Context) RateTable {
	return s.Table
}
