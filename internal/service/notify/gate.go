package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"bazaar/internal/model"
	"bazaar/pkg/log"
)

// Event categories. Step events address all four roles; store events are
// only ever delivered to admins and sellers.
const (
	CategoryStep  = "step"
	CategoryStore = "store"
)

// EventRule per-event delivery switches
type EventRule struct {
	Category string          `json:"category"`
	Roles    map[string]bool `json:"roles"`
}

// GateDocument the full event/role configuration document
type GateDocument map[string]EventRule

// criticalDefaults hard-coded floor for events that must never be silently
// disabled by a missing or partial configuration document
var criticalDefaults = map[string]map[string]bool{
	"order-created": {
		"buyer": true, "seller": true, "delivery": true, "admin": true,
	},
	"step-confirmed": {
		"buyer": true, "seller": true, "delivery": true, "admin": true,
	},
	"step-cancelled": {
		"buyer": true, "seller": true, "delivery": true, "admin": true,
	},
}

// GateConfig configuration gate settings
type GateConfig struct {
	RemoteURL    string
	FallbackFile string
	CacheTTL     time.Duration
	HTTPTimeout  time.Duration
}

// Gate decides whether an event is delivered to a role. The document is
// fetched remotely once per TTL, falling back to a local file, then to the
// critical-event defaults, then to fail-open.
type Gate struct {
	cfg    GateConfig
	client *http.Client

	mu       sync.RWMutex
	doc      GateDocument
	loadedAt time.Time
}

// NewGate creates a configuration gate
func NewGate(cfg GateConfig) *Gate {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	return &Gate{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Load fetches the document, remote first, local fallback second. An error
// means neither source produced a document; callers may still consult
// Enabled, which fail-opens.
func (g *Gate) Load(ctx context.Context) error {
	doc, err := g.fetchRemote(ctx)
	if err != nil {
		log.WithError(err).Warn("Remote notification config unavailable, trying local fallback")
		doc, err = g.readFallback()
		if err != nil {
			return fmt.Errorf("notification config unavailable: %w", err)
		}
	}

	g.mu.Lock()
	g.doc = doc
	g.loadedAt = time.Now()
	g.mu.Unlock()
	return nil
}

// Invalidate drops the cached document so the next check reloads
func (g *Gate) Invalidate() {
	g.mu.Lock()
	g.doc = nil
	g.loadedAt = time.Time{}
	g.mu.Unlock()
}

// Enabled reports whether eventKey should be delivered to role. When the
// document cannot answer, critical defaults apply; when those cannot
// either, the gate fails open and logs a warning: a missed notification is
// considered worse than a spurious one.
func (g *Gate) Enabled(ctx context.Context, eventKey, role string) bool {
	doc := g.document(ctx)

	if doc != nil {
		if rule, ok := doc[eventKey]; ok {
			if rule.Category == CategoryStore && role != model.RoleAdmin && role != model.RoleSeller {
				return false
			}
			if enabled, ok := rule.Roles[role]; ok {
				return enabled
			}
		}
	}

	if defaults, ok := criticalDefaults[eventKey]; ok {
		if enabled, ok := defaults[role]; ok {
			return enabled
		}
	}

	log.WithFields(map[string]interface{}{
		"event": eventKey,
		"role":  role,
	}).Warn("Notification config undetermined, failing open")
	return true
}

func (g *Gate) document(ctx context.Context) GateDocument {
	g.mu.RLock()
	doc := g.doc
	fresh := doc != nil && time.Since(g.loadedAt) < g.cfg.CacheTTL
	g.mu.RUnlock()

	if fresh {
		return doc
	}

	if err := g.Load(ctx); err != nil {
		log.WithError(err).Warn("Failed to load notification config")
		// Keep serving the stale document if one exists
		return doc
	}

	g.mu.RLock()
	doc = g.doc
	g.mu.RUnlock()
	return doc
}

func (g *Gate) fetchRemote(ctx context.Context) (GateDocument, error) {
	if g.cfg.RemoteURL == "" {
		return nil, fmt.Errorf("no remote config URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.RemoteURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote config returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var doc GateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed remote config: %w", err)
	}
	return doc, nil
}

func (g *Gate) readFallback() (GateDocument, error) {
	if g.cfg.FallbackFile == "" {
		return nil, fmt.Errorf("no fallback config file configured")
	}

	data, err := os.ReadFile(g.cfg.FallbackFile)
	if err != nil {
		return nil, err
	}

	var doc GateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed fallback config: %w", err)
	}
	return doc, nil
}
