package token

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/model"
)

// memTokenRepo mirrors the Replace semantics of the SQL repository
type memTokenRepo struct {
	mu   sync.Mutex
	rows map[string]*model.PushToken // userKey -> row
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{rows: make(map[string]*model.PushToken)}
}

func (r *memTokenRepo) Replace(ctx context.Context, userKey, token, platform string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, userKey)
	for k, row := range r.rows {
		if row.Token == token {
			delete(r.rows, k)
		}
	}
	r.rows[userKey] = &model.PushToken{UserKey: userKey, Token: token, Platform: platform}
	return nil
}

func (r *memTokenRepo) DeleteByUser(ctx context.Context, userKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, userKey)
	return nil
}

func (r *memTokenRepo) GetByUser(ctx context.Context, userKey string) (*model.PushToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[userKey]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (r *memTokenRepo) GetByToken(ctx context.Context, token string) (*model.PushToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Token == token {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memTokenRepo) ListByUsers(ctx context.Context, userKeys []string) ([]model.PushToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PushToken
	for _, k := range userKeys {
		if row, ok := r.rows[k]; ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

func newTestRegistry(t *testing.T, repo *memTokenRepo) Registry {
	t.Helper()
	reg, err := NewRegistry(repo, nil, 0, 0)
	require.NoError(t, err)
	return reg
}

func TestRegistry_UpsertAndResolve(t *testing.T) {
	repo := newMemTokenRepo()
	reg := newTestRegistry(t, repo)
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, "buyer-1", "tok-a", model.PlatformWeb))

	tokens, err := reg.Resolve(ctx, []string{"buyer-1", "buyer-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a"}, tokens)
}

func TestRegistry_OneTokenPerUser(t *testing.T) {
	repo := newMemTokenRepo()
	reg := newTestRegistry(t, repo)
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, "buyer-1", "tok-old", model.PlatformAndroid))
	require.NoError(t, reg.Upsert(ctx, "buyer-1", "tok-new", model.PlatformAndroid))

	tokens, err := reg.Resolve(ctx, []string{"buyer-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-new"}, tokens)

	row, err := repo.GetByToken(ctx, "tok-old")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRegistry_TokenMovesBetweenUsers(t *testing.T) {
	// a shared device logs out of one account and into another
	repo := newMemTokenRepo()
	reg := newTestRegistry(t, repo)
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, "user-a", "tok-shared", model.PlatformIOS))

	// prime the cache for user-a, then move the token
	_, err := reg.Resolve(ctx, []string{"user-a"})
	require.NoError(t, err)
	require.NoError(t, reg.Upsert(ctx, "user-b", "tok-shared", model.PlatformIOS))

	tokens, err := reg.Resolve(ctx, []string{"user-a"})
	require.NoError(t, err)
	assert.Empty(t, tokens, "previous owner must not resolve the moved token")

	tokens, err = reg.Resolve(ctx, []string{"user-b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-shared"}, tokens)
}

func TestRegistry_PlaceholderTokensRejected(t *testing.T) {
	reg := newTestRegistry(t, newMemTokenRepo())
	ctx := context.Background()

	for _, tok := range []string{"", "null", "undefined", "(null)"} {
		assert.Error(t, reg.Upsert(ctx, "buyer-1", tok, model.PlatformWeb), "token %q", tok)
	}

	tokens, err := reg.Resolve(ctx, []string{"buyer-1"})
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestRegistry_Revoke(t *testing.T) {
	repo := newMemTokenRepo()
	reg := newTestRegistry(t, repo)
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, "buyer-1", "tok-a", model.PlatformWeb))
	require.NoError(t, reg.Revoke(ctx, "buyer-1"))
	// revoking twice is fine
	require.NoError(t, reg.Revoke(ctx, "buyer-1"))

	tokens, err := reg.Resolve(ctx, []string{"buyer-1"})
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestRegistry_UpsertRequiresUser(t *testing.T) {
	reg := newTestRegistry(t, newMemTokenRepo())
	assert.Error(t, reg.Upsert(context.Background(), "", "tok-a", model.PlatformWeb))
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder("null"))
	assert.True(t, IsPlaceholder(""))
	assert.False(t, IsPlaceholder("ExponentPushToken[abc]"))
}
