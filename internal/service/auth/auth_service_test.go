package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/model"
	"bazaar/internal/repository"
	"bazaar/internal/utils"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User // username -> user
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (r *memUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.Username] = user
	return nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[username]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) GetByUserKey(ctx context.Context, userKey string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UserKey == userKey {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) ListAdminKeys(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, u := range r.users {
		if u.Role == model.RoleAdmin {
			keys = append(keys, u.UserKey)
		}
	}
	return keys, nil
}

type recordingRegistry struct {
	mu      sync.Mutex
	tokens  map[string]string
	revoked []string
}

func (r *recordingRegistry) Upsert(ctx context.Context, userKey, token, platform string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens == nil {
		r.tokens = make(map[string]string)
	}
	r.tokens[userKey] = token
	return nil
}

func (r *recordingRegistry) Revoke(ctx context.Context, userKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, userKey)
	r.revoked = append(r.revoked, userKey)
	return nil
}

func (r *recordingRegistry) Resolve(ctx context.Context, userKeys []string) ([]string, error) {
	return nil, nil
}

func newTestAuthService(t *testing.T) (AuthService, *memUserRepo, *recordingRegistry) {
	t.Helper()
	repo := newMemUserRepo()
	registry := &recordingRegistry{}
	jwtManager := utils.NewJWTManager("test-secret", "bazaar-test", time.Hour, 24*time.Hour)
	svc := NewAuthService(repo, jwtManager, registry, time.Hour, nil)
	return svc, repo, registry
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "secret123", Role: model.RoleSeller})
	require.NoError(t, err)
	assert.NotEmpty(t, user.UserKey)
	assert.NotEqual(t, "secret123", user.Password)

	resp, err := svc.Login(ctx, &LoginRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, model.RoleSeller, resp.Role)
	assert.Equal(t, "Bearer", resp.TokenType)

	claims, err := svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.UserKey, claims.UserKey)
	assert.Equal(t, model.RoleSeller, claims.Role)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterRequest{Username: "bob", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, &RegisterRequest{Username: "bob", Password: "other456"})
	assert.Error(t, err)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterRequest{Username: "carol", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &LoginRequest{Username: "carol", Password: "wrong"})
	assert.Error(t, err)
	// unknown user and wrong password are indistinguishable
	_, err2 := svc.Login(ctx, &LoginRequest{Username: "nobody", Password: "wrong"})
	assert.Equal(t, err, err2)
}

func TestLogin_RegistersDeviceToken(t *testing.T) {
	svc, _, registry := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, &RegisterRequest{Username: "dave", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &LoginRequest{
		Username:    "dave",
		Password:    "secret123",
		DeviceToken: "tok-dave",
		Platform:    model.PlatformAndroid,
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-dave", registry.tokens[user.UserKey])
}

func TestLogout_RevokesToken(t *testing.T) {
	svc, _, registry := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, &RegisterRequest{Username: "erin", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.Login(ctx, &LoginRequest{Username: "erin", Password: "secret123", DeviceToken: "tok-erin"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.UserKey))
	assert.Contains(t, registry.revoked, user.UserKey)
	assert.NotContains(t, registry.tokens, user.UserKey)
}

func TestValidateToken_Invalid(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	_, err := svc.ValidateToken(context.Background(), "garbage.token.value")
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, &RegisterRequest{Username: "frank", Password: "secret123"})
	require.NoError(t, err)
	resp, err := svc.Login(ctx, &LoginRequest{Username: "frank", Password: "secret123"})
	require.NoError(t, err)

	access, err := svc.RefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, user.UserKey, claims.UserKey)
}
