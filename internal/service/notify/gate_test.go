package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bazaar/internal/model"
)

func TestGate_RemoteDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"step-shipped": {"category": "step", "roles": {"buyer": true, "seller": false, "delivery": true, "admin": true}}
		}`))
	}))
	defer server.Close()

	gate := NewGate(GateConfig{RemoteURL: server.URL})
	assert.NoError(t, gate.Load(context.Background()))

	ctx := context.Background()
	assert.True(t, gate.Enabled(ctx, "step-shipped", model.RoleBuyer))
	assert.False(t, gate.Enabled(ctx, "step-shipped", model.RoleSeller))
	assert.True(t, gate.Enabled(ctx, "step-shipped", model.RoleDelivery))
}

func TestGate_StoreCategoryRestrictedToAdminSeller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"store-restock": {"category": "store", "roles": {"buyer": true, "seller": true, "delivery": true, "admin": true}}
		}`))
	}))
	defer server.Close()

	gate := NewGate(GateConfig{RemoteURL: server.URL})
	assert.NoError(t, gate.Load(context.Background()))

	ctx := context.Background()
	// buyer and delivery never receive store events no matter what the
	// document claims
	assert.False(t, gate.Enabled(ctx, "store-restock", model.RoleBuyer))
	assert.False(t, gate.Enabled(ctx, "store-restock", model.RoleDelivery))
	assert.True(t, gate.Enabled(ctx, "store-restock", model.RoleAdmin))
	assert.True(t, gate.Enabled(ctx, "store-restock", model.RoleSeller))
}

func TestGate_FallbackFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.json")
	err := os.WriteFile(path, []byte(`{
		"step-delivered": {"category": "step", "roles": {"buyer": true, "seller": false}}
	}`), 0644)
	assert.NoError(t, err)

	gate := NewGate(GateConfig{
		RemoteURL:    "http://127.0.0.1:1/unreachable",
		FallbackFile: path,
	})
	assert.NoError(t, gate.Load(context.Background()))

	ctx := context.Background()
	assert.True(t, gate.Enabled(ctx, "step-delivered", model.RoleBuyer))
	assert.False(t, gate.Enabled(ctx, "step-delivered", model.RoleSeller))
}

func TestGate_CriticalDefaults(t *testing.T) {
	// no remote, no fallback: critical events still fire for every role
	gate := NewGate(GateConfig{})
	ctx := context.Background()

	for _, role := range []string{model.RoleBuyer, model.RoleSeller, model.RoleDelivery, model.RoleAdmin} {
		assert.True(t, gate.Enabled(ctx, "order-created", role), "order-created/%s", role)
		assert.True(t, gate.Enabled(ctx, "step-confirmed", role), "step-confirmed/%s", role)
		assert.True(t, gate.Enabled(ctx, "step-cancelled", role), "step-cancelled/%s", role)
	}
}

func TestGate_FailOpenOnUnknownEvent(t *testing.T) {
	gate := NewGate(GateConfig{})
	assert.True(t, gate.Enabled(context.Background(), "step-obscure", model.RoleBuyer))
}

func TestGate_DocumentOverridesCriticalDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"step-cancelled": {"category": "step", "roles": {"buyer": false}}
		}`))
	}))
	defer server.Close()

	gate := NewGate(GateConfig{RemoteURL: server.URL})
	assert.NoError(t, gate.Load(context.Background()))

	ctx := context.Background()
	assert.False(t, gate.Enabled(ctx, "step-cancelled", model.RoleBuyer))
	// roles absent from the rule fall through to the critical default
	assert.True(t, gate.Enabled(ctx, "step-cancelled", model.RoleSeller))
}

func TestGate_ServesStaleDocumentOnReloadFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"step-shipped": {"category": "step", "roles": {"buyer": true, "seller": false}}}`))
	}))
	defer server.Close()

	gate := NewGate(GateConfig{RemoteURL: server.URL, CacheTTL: time.Nanosecond})
	assert.NoError(t, gate.Load(context.Background()))
	time.Sleep(time.Millisecond)

	// expired cache, failing remote: the stale document still answers
	assert.False(t, gate.Enabled(context.Background(), "step-shipped", model.RoleSeller))
	assert.True(t, calls > 1)
}

func TestGate_Invalidate(t *testing.T) {
	docs := []string{
		`{"step-shipped": {"category": "step", "roles": {"buyer": false}}}`,
		`{"step-shipped": {"category": "step", "roles": {"buyer": true}}}`,
	}
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(docs[calls%len(docs)]))
		calls++
	}))
	defer server.Close()

	gate := NewGate(GateConfig{RemoteURL: server.URL})
	ctx := context.Background()
	assert.False(t, gate.Enabled(ctx, "step-shipped", model.RoleBuyer))

	gate.Invalidate()
	assert.True(t, gate.Enabled(ctx, "step-shipped", model.RoleBuyer))
}
